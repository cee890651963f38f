package main

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/petseg/metric"
)

// runPredict segments a single image and writes the decoded mask as a color
// PNG next to the report output.
func runPredict() {
	if ImagePath == "" {
		log.Fatal("the 'predict' task needs an -image flag")
	}

	vs := nn.NewVarStore(Device)
	net := buildNet(vs)
	if _, err := vs.LoadPartial(ModelPath); err != nil {
		log.Fatal(err)
	}

	imgBuf, err := readImage(ImagePath)
	if err != nil {
		log.Fatal(err)
	}
	img := imageTensor(imgBuf, false)

	var labels *ts.Tensor
	ts.NoGrad(func() {
		input := img.MustUnsqueeze(0, true).MustTo(Device, true)
		scores, err := net.ForwardT(input, false)
		input.MustDrop()
		if err != nil {
			log.Fatal(err)
		}

		pred, err := metric.Decode(scores)
		scores.MustDrop()
		if err != nil {
			log.Fatal(err)
		}
		labels = pred.MustSqueeze1(0, true)
	})
	defer labels.MustDrop()

	name := strings.TrimSuffix(filepath.Base(ImagePath), filepath.Ext(ImagePath))
	outFile := filepath.Join(OutPath, fmt.Sprintf("%v-mask.png", name))
	if err := saveMask(labels, outFile); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %v\n", outFile)
}
