package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"laborcond/db"
	"laborcond/logging"
	"laborcond/ml"
)

type options struct {
	modelPath   string
	dataPath    string
	labelColumn string
	dbPath      string
}

func main() {
	var opts options
	flag.StringVar(&opts.modelPath, "model_path", "", "classifier artifact to evaluate")
	flag.StringVar(&opts.dataPath, "data", "", "labeled CSV: one column per feature plus the label column")
	flag.StringVar(&opts.labelColumn, "label", "label", "name of the label column")
	flag.StringVar(&opts.dbPath, "db", "", "sqlite prediction log to record the evaluation in (optional)")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	logger, err := logging.New(logging.DefaultOptions(), *debug)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	if err := run(context.Background(), logger, opts); err != nil {
		logger.Fatal("evaluation failed", zap.Error(err))
	}
	_ = logger.Sync()
}

func run(ctx context.Context, logger *zap.Logger, opts options) error {
	if opts.modelPath == "" || opts.dataPath == "" {
		return errors.New("model_path and data are required")
	}

	artifact, err := ml.LoadModel(opts.modelPath)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	classifier, err := ml.AsClassifier(artifact)
	if err != nil {
		return fmt.Errorf("model cannot be evaluated: %w", err)
	}

	file, err := os.Open(opts.dataPath)
	if err != nil {
		return fmt.Errorf("open data: %w", err)
	}
	defer file.Close()

	rows, labels, err := readLabeledCSV(file, opts.labelColumn)
	if err != nil {
		return fmt.Errorf("read data: %w", err)
	}

	result, err := evaluateModel(classifier, rows, labels)
	if err != nil {
		return err
	}
	logger.Info("evaluation finished",
		zap.String("model", classifier.Name()),
		zap.Int("rows", result.rows),
		zap.Int("skipped", result.skipped),
		zap.Float64("accuracy", result.accuracy),
		zap.Float64("precision", result.precision),
		zap.Float64("recall", result.recall))

	if opts.dbPath != "" {
		store, err := db.Open(opts.dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer store.Close()

		entry := db.EvaluationLog{
			ModelName:   filepath.Base(opts.modelPath),
			Accuracy:    result.accuracy,
			Precision:   result.precision,
			Recall:      result.recall,
			EvaluatedAt: time.Now(),
			DataPoints:  result.rows,
		}
		if err := store.SaveEvaluation(ctx, entry); err != nil {
			return fmt.Errorf("save evaluation: %w", err)
		}
	}

	fmt.Printf("accuracy=%.3f precision=%.3f recall=%.3f rows=%d\n",
		result.accuracy, result.precision, result.recall, result.rows)
	return nil
}

// readLabeledCSV reads a header row followed by numeric rows. Every column
// except labelColumn becomes a vector field.
func readLabeledCSV(r io.Reader, labelColumn string) ([]ml.Vector, []int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	labelIdx := -1
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
		if header[i] == labelColumn {
			labelIdx = i
		}
	}
	if labelIdx < 0 {
		return nil, nil, fmt.Errorf("label column %q not found", labelColumn)
	}

	var rows []ml.Vector
	var labels []int
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}

		v := make(ml.Vector, len(header)-1)
		var label int
		for i, raw := range record {
			value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d column %s: %w", line, header[i], err)
			}
			if i == labelIdx {
				if value != 0 && value != 1 {
					return nil, nil, fmt.Errorf("line %d: label must be 0 or 1, got %v", line, value)
				}
				label = int(value)
				continue
			}
			v[header[i]] = value
		}
		rows = append(rows, v)
		labels = append(labels, label)
	}
	if len(rows) == 0 {
		return nil, nil, errors.New("no data rows")
	}
	return rows, labels, nil
}

type evaluation struct {
	accuracy  float64
	precision float64
	recall    float64
	rows      int
	skipped   int
}

// evaluateModel scores class 1 as the positive class. A row missing one of
// the model's features aborts the run since the CSV does not match the
// model. Rows failing for any other reason are skipped and counted.
func evaluateModel(model ml.Classifier, rows []ml.Vector, labels []int) (evaluation, error) {
	var result evaluation
	var correct, truePositive, predictedPositive, actualPositive int

	for i, row := range rows {
		label, err := model.Predict(row)
		if errors.Is(err, ml.ErrMissingFeature) {
			return evaluation{}, fmt.Errorf("row %d: %w", i+1, err)
		}
		if err != nil {
			result.skipped++
			continue
		}
		result.rows++
		if label == labels[i] {
			correct++
		}
		if label == 1 {
			predictedPositive++
		}
		if labels[i] == 1 {
			actualPositive++
			if label == 1 {
				truePositive++
			}
		}
	}

	if result.rows == 0 {
		return result, errors.New("no row could be scored")
	}
	result.accuracy = float64(correct) / float64(result.rows)
	if predictedPositive > 0 {
		result.precision = float64(truePositive) / float64(predictedPositive)
	}
	if actualPositive > 0 {
		result.recall = float64(truePositive) / float64(actualPositive)
	}
	return result, nil
}
