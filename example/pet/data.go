package main

import (
	"fmt"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	ts "github.com/sugarme/gotch/tensor"
)

// petDataset is a list of sample ids resolvable to an image and its trimap.
type petDataset struct {
	dataPath string
	ids      []string
}

func (d *petDataset) Len() int {
	return len(d.ids)
}

// imageFile resolves the image file for a sample id, trying the formats the
// reader supports.
func (d *petDataset) imageFile(id string) (string, error) {
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".tiff"} {
		p := filepath.Join(d.dataPath, "images", id+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no image file for sample %q under %v", id, d.dataPath)
}

func (d *petDataset) maskFile(id string) string {
	return filepath.Join(d.dataPath, "annotations", "trimaps", id+".png")
}

// Sample loads sample i as an image tensor [3 128 128] and a label map
// [128 128]. With flip true both are mirrored horizontally together.
func (d *petDataset) Sample(i int, flip bool) (img, mask *ts.Tensor, err error) {
	id := d.ids[i]
	imgFile, err := d.imageFile(id)
	if err != nil {
		return nil, nil, err
	}

	imgBuf, err := readImage(imgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("reading image for %q: %w", id, err)
	}
	maskBuf, err := readImage(d.maskFile(id))
	if err != nil {
		return nil, nil, fmt.Errorf("reading trimap for %q: %w", id, err)
	}

	return imageTensor(imgBuf, flip), maskTensor(maskBuf, flip), nil
}

// datasetSplits builds the train and validation datasets. An index.csv with
// "id" and "split" columns pins the split; without one every tenth sample of
// the sorted image listing goes to validation.
func datasetSplits() (train, val *petDataset, err error) {
	train = &petDataset{dataPath: DataPath}
	val = &petDataset{dataPath: DataPath}

	indexFile := filepath.Join(DataPath, "index.csv")
	if f, ferr := os.Open(indexFile); ferr == nil {
		defer f.Close()
		df := dataframe.ReadCSV(f, dataframe.HasHeader(true))
		if df.Err != nil {
			return nil, nil, fmt.Errorf("reading %v: %w", indexFile, df.Err)
		}
		ids := df.Col("id").Records()
		splits := df.Col("split").Records()
		for i, id := range ids {
			if splits[i] == "val" {
				val.ids = append(val.ids, id)
			} else {
				train.ids = append(train.ids, id)
			}
		}
		return train, val, nil
	}

	files, err := ioutil.ReadDir(filepath.Join(DataPath, "images"))
	if err != nil {
		return nil, nil, err
	}
	i := 0
	for _, f := range files {
		name := f.Name()
		ext := filepath.Ext(name)
		switch strings.ToLower(ext) {
		case ".jpg", ".jpeg", ".png", ".tiff":
		default:
			continue
		}
		id := strings.TrimSuffix(name, ext)
		if i%10 == 9 {
			val.ids = append(val.ids, id)
		} else {
			train.ids = append(train.ids, id)
		}
		i++
	}
	if train.Len() == 0 {
		return nil, nil, fmt.Errorf("no images found under %v", filepath.Join(DataPath, "images"))
	}
	return train, val, nil
}

// stackBatch loads the given sample indexes and stacks them into batch
// tensors [B 3 128 128] and [B 128 128]. Augmentation flips image and mask
// together with probability 0.5.
func stackBatch(ds *petDataset, idxs []int, augment bool) (imgTs, maskTs *ts.Tensor, err error) {
	var imgs, masks []ts.Tensor
	for _, i := range idxs {
		flip := augment && rand.Intn(2) == 1
		img, mask, err := ds.Sample(i, flip)
		if err != nil {
			for _, x := range imgs {
				x.MustDrop()
			}
			for _, x := range masks {
				x.MustDrop()
			}
			return nil, nil, err
		}
		imgs = append(imgs, *img)
		masks = append(masks, *mask)
	}

	imgTs = ts.MustStack(imgs, 0)
	for _, x := range imgs {
		x.MustDrop()
	}
	maskTs = ts.MustStack(masks, 0)
	for _, x := range masks {
		x.MustDrop()
	}

	return imgTs, maskTs, nil
}
