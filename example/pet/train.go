package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/petseg/unet"
)

const numClasses = 3

func buildNet(vs *nn.VarStore) *unet.UNet {
	cfg := unet.DefaultConfig()
	cfg.DropRate = DropRate
	cfg.Attention = Attention

	net, err := unet.NewUNet(vs.Root(), cfg)
	if err != nil {
		log.Fatal(err)
	}
	return net
}

func buildOptimizer(vs *nn.VarStore) *nn.Optimizer {
	var opt *nn.Optimizer
	var err error
	switch OptStr {
	case "SGD":
		opt, err = nn.DefaultSGDConfig().Build(vs, LR)
	case "Adam":
		opt, err = nn.DefaultAdamConfig().Build(vs, LR)
	default:
		err = fmt.Errorf("unspecified/invalid optimizer option: %q", OptStr)
	}
	if err != nil {
		log.Fatal(err)
	}
	return opt
}

// crossEntropyLoss is the mean per-pixel negative log likelihood of the true
// class. scores are probabilities [B K H W]; target is an int64 label map
// [B H W].
func crossEntropyLoss(scores, target *ts.Tensor, classes int64) *ts.Tensor {
	clipped := scores.MustClip(ts.FloatScalar(1e-6), ts.FloatScalar(1.0), false)
	logp := clipped.MustLog(true)

	size := scores.MustSize()
	pixels := size[0] * size[2] * size[3]

	var total *ts.Tensor
	for c := int64(0); c < classes; c++ {
		hot := target.MustEq(ts.IntScalar(c), false).MustTotype(gotch.Float, true).MustUnsqueeze(1, true)
		lp := logp.MustNarrow(1, c, 1, false)
		term := lp.MustMul(hot, true)
		hot.MustDrop()
		sum := term.MustSum(gotch.Float, true)
		if total == nil {
			total = sum
		} else {
			next := total.MustAdd(sum, true)
			sum.MustDrop()
			total = next
		}
	}
	logp.MustDrop()

	return total.MustMul1(ts.FloatScalar(-1.0/float64(pixels)), true)
}

func runTrain() {
	trainDS, valDS, err := datasetSplits()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("train samples: %v\tval samples: %v\n", trainDS.Len(), valDS.Len())

	vs := nn.NewVarStore(Device)
	net := buildNet(vs)
	if _, err := os.Stat(ModelPath); err == nil {
		if _, err := vs.LoadPartial(ModelPath); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("resumed weights from %v\n", ModelPath)
	}
	opt := buildOptimizer(vs)

	var losses []float64
	step := 0
	for epoch := 0; epoch < Epochs; epoch++ {
		for _, batch := range batches(trainDS.Len(), BatchSize) {
			imgTs, maskTs, err := stackBatch(trainDS, batch, true)
			if err != nil {
				log.Fatal(err)
			}

			input := imgTs.MustTo(Device, true)
			scores, err := net.ForwardT(input, true)
			input.MustDrop()
			if err != nil {
				log.Fatal(err)
			}

			target := maskTs.MustTo(Device, true)
			loss := crossEntropyLoss(scores, target, numClasses)
			scores.MustDrop()
			target.MustDrop()

			opt.BackwardStep(loss)
			lossVal := loss.Float64Values()[0]
			loss.MustDrop()
			losses = append(losses, lossVal)

			step++
			fmt.Printf("epoch %2d step %5d\tloss: %.5f\n", epoch, step, lossVal)
			if step%ValidateSize == 0 && valDS.Len() > 0 {
				report := evaluateDataset(net, valDS)
				printReport(report)
			}
		}

		if err := os.MkdirAll(filepath.Dir(ModelPath), 0755); err != nil {
			log.Fatal(err)
		}
		if err := vs.Save(ModelPath); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("epoch %2d done, saved weights to %v\n", epoch, ModelPath)
	}

	if err := plotLoss(losses, filepath.Join(OutPath, "loss.png")); err != nil {
		log.Fatal(err)
	}
}

// batches shuffles 0..n-1 and cuts it into batchSize chunks, dropping the
// odd remainder.
func batches(n, batchSize int) [][]int {
	idxs := rand.Perm(n)
	var out [][]int
	for start := 0; start+batchSize <= n; start += batchSize {
		out = append(out, idxs[start:start+batchSize])
	}
	if len(out) == 0 && n > 0 {
		out = append(out, idxs)
	}
	return out
}
