package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/petseg/metric"
	"github.com/sugarme/petseg/unet"
)

var classNames = []string{
	classPet:        "pet",
	classBackground: "background",
	classOutline:    "outline",
}

func className(c int64) string {
	if c < 0 || c >= int64(len(classNames)) {
		return fmt.Sprintf("class-%v", c)
	}
	return classNames[c]
}

func runValidate() {
	_, valDS, err := datasetSplits()
	if err != nil {
		log.Fatal(err)
	}
	if valDS.Len() == 0 {
		log.Fatal("validation split is empty")
	}

	vs := nn.NewVarStore(Device)
	net := buildNet(vs)
	if _, err := vs.LoadPartial(ModelPath); err != nil {
		log.Fatal(err)
	}

	report := evaluateDataset(net, valDS)
	printReport(report)

	if err := writeReportCSV(report, filepath.Join(OutPath, "report.csv")); err != nil {
		log.Fatal(err)
	}
	if err := plotIoU(report, filepath.Join(OutPath, "iou.png")); err != nil {
		log.Fatal(err)
	}
}

// evaluateDataset predicts every sample of ds in inference mode and scores
// the stacked label maps against ground truth in one pass, so the per-class
// counts aggregate over the whole dataset.
func evaluateDataset(net *unet.UNet, ds *petDataset) metric.Report {
	var preds, truths []ts.Tensor
	ts.NoGrad(func() {
		for i := 0; i < ds.Len(); i++ {
			img, mask, err := ds.Sample(i, false)
			if err != nil {
				log.Fatal(err)
			}

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
			squeezed := pred.MustSqueeze1(0, true)

			preds = append(preds, *squeezed)
			truths = append(truths, *mask)
		}
	})

	predTs := ts.MustStack(preds, 0)
	for _, x := range preds {
		x.MustDrop()
	}
	truthTs := ts.MustStack(truths, 0)
	for _, x := range truths {
		x.MustDrop()
	}
	defer predTs.MustDrop()
	defer truthTs.MustDrop()

	report, err := metric.Evaluate(predTs, truthTs, numClasses)
	if err != nil {
		log.Fatal(err)
	}
	return report
}

// printReport lists classes ranked by IoU, best first.
func printReport(report metric.Report) {
	ranked := make(metric.Report, len(report))
	copy(ranked, report)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].IoU > ranked[j].IoU })

	fmt.Printf("%-12v %12v %12v %10v %10v\n", "class", "intersection", "union", "IoU", "Dice")
	for _, s := range ranked {
		fmt.Printf("%-12v %12d %12d %10.4f %10.4f\n", className(s.Class), s.Intersection, s.Union, s.IoU, s.Dice)
	}
	fmt.Printf("mean IoU: %.4f\tmean Dice: %.4f\n", report.MeanIoU(), report.MeanDice())
}

func writeReportCSV(report metric.Report, path string) error {
	records := [][]string{{"class", "intersection", "union", "pred_area", "truth_area", "iou", "dice"}}
	for _, s := range report {
		records = append(records, []string{
			className(s.Class),
			fmt.Sprintf("%d", s.Intersection),
			fmt.Sprintf("%d", s.Union),
			fmt.Sprintf("%d", s.PredArea),
			fmt.Sprintf("%d", s.TruthArea),
			fmt.Sprintf("%.6f", s.IoU),
			fmt.Sprintf("%.6f", s.Dice),
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	df := dataframe.LoadRecords(records)
	return df.WriteCSV(f)
}
