package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/liamcoop/ivf-estimator/formulas"
	"github.com/liamcoop/ivf-estimator/internal/logger"
	"github.com/liamcoop/ivf-estimator/validation"
)

func main() {
	var formulasPath string
	var inputPath string
	var asJSON bool

	flag.StringVar(&formulasPath, "formulas", "data/ivf_success_formulas.csv", "Path to the coefficient table CSV")
	flag.StringVar(&inputPath, "input", "-", "JSON submission file, - for stdin")
	flag.BoolVar(&asJSON, "json", false, "Print the result as JSON")
	flag.Parse()

	// Keep stdout for the result
	if err := logger.Setup(context.Background(), logger.Options{Level: "WARN", Output: os.Stderr}); err != nil {
		fmt.Fprintf(os.Stderr, "logger setup: %v\n", err)
	}

	in := os.Stdin
	if inputPath != "-" {
		f, err := os.Open(inputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open input: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	if err := run(context.Background(), formulasPath, in, os.Stdout, asJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run validates the submission read from in and prints its estimate to out
func run(ctx context.Context, formulasPath string, in io.Reader, out io.Writer, asJSON bool) error {
	var submission validation.Submission
	if err := json.NewDecoder(in).Decode(&submission); err != nil {
		return fmt.Errorf("invalid submission: %w", err)
	}

	validator, err := validation.NewValidator(validation.DefaultRules())
	if err != nil {
		return err
	}

	patient, err := validator.Check(submission)
	if err != nil {
		var validationErr *validation.ValidationError
		if errors.As(err, &validationErr) {
			for _, fe := range validationErr.Errors {
				fmt.Fprintf(out, "%s: %s\n", fe.Field, fe.Message)
			}
		}
		return err
	}

	engine := formulas.NewEngine(formulas.NewTable(formulas.NewCSVFileSource(formulasPath)))
	result, err := engine.Calculate(ctx, patient)
	if err != nil {
		return err
	}
	if !result.Finite() {
		return fmt.Errorf("unable to calculate success rate for formula %s", result.FormulaLabel)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "Success rate: %.2f%%\n", result.Probability*100)
	fmt.Fprintf(out, "BMI:          %.1f\n", result.BMI)
	fmt.Fprintf(out, "Formula:      %s\n", result.FormulaLabel)
	fmt.Fprintf(out, "Score:        %.6f\n", result.Score)
	return nil
}
