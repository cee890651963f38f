package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/sugarme/gotch"
)

// flag variables
var (
	DataPath  string
	ModelPath string
	ImagePath string
	OutPath   string
	OptStr    string
	Cuda      bool
	task      string
	Device    gotch.Device
)

// hyperparameters
var (
	LR           float64 // learning rate
	BatchSize    int     // batch size
	Epochs       int     // training epochs
	ValidateSize int     // number of iterations that triggers running validation task
	DropRate     float64 // dropout rate for all encoder/decoder stages
	Attention    bool    // SCSE attention on decoder skip fusion
)

func init() {
	flag.StringVar(&DataPath, "data", "./input", "specify input data directory")
	flag.StringVar(&ModelPath, "model", "./model/petseg.gt", "specify full path to model weight file")
	flag.StringVar(&ImagePath, "image", "", "specify an image file for the 'predict' task")
	flag.StringVar(&OutPath, "out", "./output", "specify output directory for masks, reports and plots")
	flag.BoolVar(&Cuda, "cuda", false, "specify whether using CUDA or not")
	flag.StringVar(&task, "task", "train", "specify task to run")
	flag.Float64Var(&LR, "lr", 0.001, "specify learning rate")
	flag.IntVar(&BatchSize, "batch", 16, "specify batch size")
	flag.IntVar(&Epochs, "epochs", 20, "specify number of training epochs")
	flag.IntVar(&ValidateSize, "validate", 50, "specify size of validation cycles")
	flag.Float64Var(&DropRate, "drop", 0.3, "specify dropout rate")
	flag.BoolVar(&Attention, "attention", false, "specify whether decoder stages use SCSE attention")
	flag.StringVar(&OptStr, "opt", "Adam", "specify optimizer type")
}

func main() {
	flag.Parse()

	DataPath = absPath(DataPath)
	ModelPath = absPath(ModelPath)
	OutPath = absPath(OutPath)

	Device = gotch.CPU
	if Cuda {
		Device = gotch.NewCuda().CudaIfAvailable()
	}

	switch task {
	case "train":
		runTrain()
	case "validate":
		runValidate()
	case "predict":
		runPredict()
	default:
		err := fmt.Errorf("unknown task %q, specify a valid 'task' flag to run", task)
		log.Fatal(err)
	}
}

// helper to get absolute file path
func absPath(p string) string {
	fullpath, err := filepath.Abs(p)
	if err != nil {
		log.Fatal(err)
	}
	return fullpath
}
