package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/drakos74/free-model/internal/assembly"
	"github.com/drakos74/free-model/internal/blueprint"
	"github.com/drakos74/free-model/internal/data"
	"github.com/drakos74/free-model/internal/math/nn"
	"github.com/drakos74/free-model/internal/observe"
	"github.com/drakos74/free-model/internal/report"
	"github.com/drakos74/free-model/internal/storage"
	json_storage "github.com/drakos74/free-model/internal/storage/file/json"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	path := flag.String("blueprint", "", "path of the model blueprint")
	dataPath := flag.String("data", "", "path of the csv data, overrides the blueprint")
	out := flag.String("out", "", "directory to store the trained model and its history")
	debug := flag.Bool("debug", false, "log every model event")
	flag.Parse()

	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if *path == "" {
		log.Fatalf("no blueprint given")
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("could not open blueprint: %s", err.Error())
	}
	b, err := blueprint.Parse(f)
	f.Close()
	if err != nil {
		log.Fatalf("%s", err.Error())
	}

	file := *dataPath
	if file == "" {
		file = b.Data.File
		if file != "" && !filepath.IsAbs(file) {
			file = filepath.Join(filepath.Dir(*path), file)
		}
	}
	if file == "" {
		log.Fatalf("no data file given")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	dataset := data.New()
	df, err := os.Open(file)
	if err != nil {
		log.Fatalf("could not open data: %s", err.Error())
	}
	err = dataset.Load(ctx, df)
	df.Close()
	if err != nil {
		log.Fatalf("%s", err.Error())
	}

	bus := observe.NewBus().SubscribeAll(func(e observe.Event) {
		zlog.Debug().
			Str("event", e.Kind.String()).
			Str("model", e.Model).
			Str("detail", e.Detail).
			Msg("model event")
	})
	service := assembly.New(nn.New(), dataset, bus)
	if err := b.Apply(service, dataset); err != nil {
		log.Fatalf("could not apply blueprint: %s", err.Error())
	}

	fmt.Println("data")
	report.Stats(os.Stdout, dataset.Stats())

	summary, err := service.Summary()
	if err != nil {
		log.Fatalf("%s", err.Error())
	}
	fmt.Println("model")
	report.Summary(os.Stdout, summary)

	history, err := service.FitModel(ctx, b.Fit.BatchSize, b.Fit.Epochs, b.Fit.ValidationSplit)
	if err != nil {
		log.Fatalf("could not train model: %s", err.Error())
	}
	if err := report.History(os.Stdout, history); err != nil {
		log.Fatalf("%s", err.Error())
	}

	scores, err := service.EvaluateModel(b.Fit.BatchSize)
	if err != nil {
		log.Fatalf("could not evaluate model: %s", err.Error())
	}
	fmt.Println("evaluation")
	report.Scores(os.Stdout, scores)

	if *out != "" {
		store := json_storage.NewJsonBlob(*out, "models", "train", true)
		if err := store.Store(storage.Key{Model: service.Name(), Label: storage.HistoryLabel}, history); err != nil {
			log.Fatalf("could not store history: %s", err.Error())
		}
		mf, err := os.Create(filepath.Join(*out, fmt.Sprintf("%s.json", service.Name())))
		if err != nil {
			log.Fatalf("could not create model file: %s", err.Error())
		}
		defer mf.Close()
		if err := service.SaveModel(mf); err != nil {
			log.Fatalf("could not save model: %s", err.Error())
		}
	}
}
