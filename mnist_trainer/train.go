package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"mlp-mnist/config"
	"mlp-mnist/dataset"
	"mlp-mnist/device"
	"mlp-mnist/nn"
	"mlp-mnist/optimizer"
	"mlp-mnist/plotting"
	"mlp-mnist/trainer"
	"mlp-mnist/utility"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (built-in defaults when empty)")
	dataDir := flag.String("data-dir", "", "Directory holding the MNIST files")
	dev := flag.String("device", "", "Device: auto, cpu or cuda")
	seed := flag.Int64("seed", 0, "PRNG seed")
	lr := flag.Float64("lr", 0, "Learning rate")
	epochs := flag.Int("epochs", 0, "Number of epochs")
	batchSize := flag.Int("batch-size", 0, "Batch size")
	logEvery := flag.Int("log-every", 0, "Print the minibatch loss every N batches")
	trainSize := flag.Int("train-size", 0, "Number of leading training images used for training")
	resultsDir := flag.String("results-dir", "", "Write plot files here")
	format := flag.String("plot-format", "", "Plot file format: pdf, png, svg, ...")
	dashboard := flag.Bool("dashboard", false, "Show a live terminal dashboard instead of progress text")
	flag.Parse()

	// -seed 0 is a real seed, so only a flag given on the command line overrides the file
	var seedOverride *int64
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			seedOverride = seed
		}
	})

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	cfg.ApplyOverrides(config.Overrides{
		DataDir:      *dataDir,
		Device:       *dev,
		Seed:         seedOverride,
		LearningRate: *lr,
		Epochs:       *epochs,
		BatchSize:    *batchSize,
		LogEvery:     *logEvery,
		TrainSize:    *trainSize,
		ResultsDir:   *resultsDir,
		Format:       *format,
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *dashboard); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("training interrupted")
			os.Exit(130)
		}
		log.Fatalf("training failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, withDashboard bool) error {
	dev, err := device.Detect(cfg.Device)
	if err != nil {
		return err
	}
	nn.LossWorkers = dev.Workers
	log.Printf("device: %s", dev)

	random := rand.New(rand.NewSource(cfg.Seed))

	// -- Load Data --
	log.Printf("preparing MNIST dataset from %s", cfg.DataDir)
	full, err := dataset.LoadMNIST(cfg.DataDir, true, cfg.Download)
	if err != nil {
		return err
	}
	trainSet, validSet, err := dataset.Split(full, cfg.TrainSize, cfg.ValidSize)
	if err != nil {
		return err
	}
	log.Printf("loaded %d images: %d for training, %d for validation", full.Len(), trainSet.Len(), validSet.Len())

	trainLoader, err := dataset.NewLoader(trainSet, cfg.BatchSize, true, random)
	if err != nil {
		return err
	}
	validLoader, err := dataset.NewLoader(validSet, cfg.BatchSize, true, random)
	if err != nil {
		return err
	}
	if err := trainer.PrintBatchShapes(os.Stdout, trainLoader); err != nil {
		return err
	}

	// -- Model and Optimizer --
	model, err := nn.NewMLP(nn.MLPConfig{
		NumFeatures: cfg.Model.NumFeatures,
		NumHidden1:  cfg.Model.NumHidden1,
		NumHidden2:  cfg.Model.NumHidden2,
		NumClasses:  cfg.Model.NumClasses,
		Activation:  cfg.Model.Activation,
	}, random)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}
	if err := utility.NewModelInspector(model).Summary(os.Stdout); err != nil {
		return err
	}
	sgd, err := optimizer.NewSGD(model.Parameters(), cfg.LearningRate)
	if err != nil {
		return fmt.Errorf("failed to create optimizer: %w", err)
	}

	opts := trainer.Options{
		Model:       model,
		Optimizer:   sgd,
		TrainLoader: trainLoader,
		ValidLoader: validLoader,
		Epochs:      cfg.Epochs,
		LogEvery:    cfg.LogEvery,
		Out:         os.Stdout,
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var dash *utility.TrainingDashboard
	if withDashboard {
		dash, err = utility.NewTrainingDashboard(cfg.LearningRate, cfg.BatchSize, cfg.Epochs, dev.String())
		if err != nil {
			return err
		}
		dash.Listen(cancel)
		opts.Observer = dash
		opts.Out = io.Discard
	}

	// -- Training Loop --
	history, err := trainer.TrainModel(ctx, opts)
	if dash != nil {
		if err == nil {
			dash.Log("training finished, press q to exit")
			dash.Wait()
		}
		dash.Close()
	}
	if err != nil {
		return err
	}

	if err := savePlots(cfg, history, trainLoader.Len()); err != nil {
		return err
	}
	return showPredictions(os.Stdout, model, validLoader, 5)
}

func savePlots(cfg *config.Config, history *trainer.History, iterPerEpoch int) error {
	if cfg.Plot.ResultsDir == "" {
		log.Printf("results_dir not set, skipping plot files")
		return nil
	}
	if cfg.Plot.Loss {
		p, err := plotting.TrainingLoss(history.MinibatchLoss, cfg.Epochs, iterPerEpoch, cfg.Plot.AveragingIterations)
		if err != nil {
			return err
		}
		path, err := plotting.SaveIn(p, cfg.Plot.ResultsDir, plotting.LossFile, cfg.Plot.Format)
		if err != nil {
			return err
		}
		log.Printf("wrote %s", path)
	}
	if cfg.Plot.Accuracy {
		p, err := plotting.Accuracy(history.TrainAcc, history.ValidAcc)
		if err != nil {
			return err
		}
		path, err := plotting.SaveIn(p, cfg.Plot.ResultsDir, plotting.AccuracyFile, cfg.Plot.Format)
		if err != nil {
			return err
		}
		log.Printf("wrote %s", path)
	}
	return nil
}

// showPredictions classifies the first validation batch and prints up to n results.
func showPredictions(w io.Writer, model trainer.Model, loader *dataset.Loader, n int) error {
	err := loader.ForEach(func(_ int, b dataset.Batch) error {
		preds, err := trainer.Predict(model, b.Images)
		if err != nil {
			return err
		}
		for i, p := range preds {
			if i == n {
				break
			}
			fmt.Fprintf(w, "sample %d: predicted %d (p=%.3f), label %d\n", i, p.Label, p.Probability, b.Labels[i])
		}
		return errDone
	})
	if errors.Is(err, errDone) {
		return nil
	}
	return err
}

var errDone = errors.New("done")
