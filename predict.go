package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	qhttp "laborcond/http"
	"laborcond/ml"
)

var (
	profileFlags = qhttp.DefaultProfileRequest()
	interactive  bool
	outputFormat string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Run a benefit classifier or a wage comparison for one profile",
}

var predictBenefitCmd = &cobra.Command{
	Use:   "benefit [name]",
	Short: "Predict whether the profile has a benefit",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPredictBenefit,
}

var predictWageCmd = &cobra.Command{
	Use:   "wage [disability]",
	Short: "Compare the hourly wage with and without a disability",
	Long:  "The disability is given by key (discapacidad_ver) or by label (Discapacidad Visual).",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPredictWage,
}

func init() {
	flags := predictCmd.PersistentFlags()
	flags.IntVar(&profileFlags.Age, "edad", profileFlags.Age, "age in years (18-99)")
	flags.IntVar(&profileFlags.Schooling, "escolaridad", profileFlags.Schooling, "accumulated years of schooling (0-30)")
	flags.StringVar(&profileFlags.Gender, "sexo", profileFlags.Gender, "gender")
	flags.StringVar(&profileFlags.Afrodescendant, "afrodescendiente", profileFlags.Afrodescendant, "afro-descendant (Sí/No)")
	flags.StringVar(&profileFlags.IndigenousLanguage, "lengua-indigena", profileFlags.IndigenousLanguage, "speaks an indigenous language (Sí/No)")
	flags.StringVar(&profileFlags.AnyDisability, "discapacidad", profileFlags.AnyDisability, "has any disability (Sí/No), benefit classifiers only")
	flags.StringVar(&profileFlags.Region, "region", profileFlags.Region, "region")
	flags.StringVar(&profileFlags.Sector, "sector", profileFlags.Sector, "work sector")
	flags.StringVar(&profileFlags.Locality, "localidad", profileFlags.Locality, "locality size")
	flags.BoolVarP(&interactive, "interactive", "i", false, "choose every field through prompts")
	flags.StringVarP(&outputFormat, "output", "o", "text", "output format: text or json")

	predictCmd.AddCommand(predictBenefitCmd, predictWageCmd)
	rootCmd.AddCommand(predictCmd)
}

func runPredictBenefit(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	benefit := ""
	if len(args) > 0 {
		benefit = args[0]
	}
	req := profileFlags
	if interactive {
		if benefit == "" {
			if benefit, err = selectOne("Selecciona un Modelo", a.registry.BenefitNames()); err != nil {
				return err
			}
		}
		if req, err = promptProfile(req, true); err != nil {
			return err
		}
	}
	if benefit == "" {
		return errors.New("benefit name required (or use --interactive)")
	}

	v, err := classifierInput(req)
	if err != nil {
		return err
	}
	prediction, err := a.benefits.Classify(cmd.Context(), benefit, v)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return writeJSON(out, prediction)
	}
	verdict := "No tienes la prestación"
	if prediction.Eligible() {
		verdict = "Sí tienes la prestación"
	}
	fmt.Fprintf(out, "Predicción: %s para %s\n", verdict, prediction.Benefit)
	fmt.Fprintf(out, "Probabilidad: %.2f\n", prediction.Probability)
	return nil
}

func runPredictWage(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	disability := ""
	if len(args) > 0 {
		disability = args[0]
	}
	req := profileFlags
	if interactive {
		if disability == "" {
			if disability, err = selectOne("Selecciona el tipo de discapacidad", a.registry.DisabilityLabels()); err != nil {
				return err
			}
		}
		if req, err = promptProfile(req, false); err != nil {
			return err
		}
	}
	if disability == "" {
		return errors.New("disability required (or use --interactive)")
	}

	baseline, err := wageInput(req)
	if err != nil {
		return err
	}
	comparison, err := a.wages.Compare(cmd.Context(), disability, baseline)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return writeJSON(out, comparison)
	}
	fmt.Fprintf(out, "%s\n", comparison.Label)
	fmt.Fprintf(out, "Salario con discapacidad: $%.2f por hora\n", comparison.WithDisability)
	fmt.Fprintf(out, "Salario sin discapacidad: $%.2f por hora\n", comparison.WithoutDisability)
	fmt.Fprintf(out, "Diferencia: $%.2f por hora\n", comparison.Gap)
	return nil
}

func classifierInput(req qhttp.ProfileRequest) (ml.Vector, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	profile, err := req.Profile()
	if err != nil {
		return nil, err
	}
	return ml.ClassifierVector(profile)
}

func wageInput(req qhttp.ProfileRequest) (ml.Vector, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	profile, err := req.Profile()
	if err != nil {
		return nil, err
	}
	return ml.WageBaseline(profile)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func selectOne(label string, items []string) (string, error) {
	prompt := promptui.Select{Label: label, Items: items, Size: len(items)}
	_, value, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("prompt %q: %w", label, err)
	}
	return value, nil
}

func promptInt(label string, current, min, max int) (int, error) {
	prompt := promptui.Prompt{
		Label:   fmt.Sprintf("%s (%d-%d)", label, min, max),
		Default: strconv.Itoa(current),
		Validate: func(input string) error {
			n, err := strconv.Atoi(input)
			if err != nil {
				return errors.New("número entero requerido")
			}
			if n < min || n > max {
				return fmt.Errorf("debe estar entre %d y %d", min, max)
			}
			return nil
		},
	}
	value, err := prompt.Run()
	if err != nil {
		return 0, fmt.Errorf("prompt %q: %w", label, err)
	}
	return strconv.Atoi(value)
}

type profileSelect struct {
	label    string
	category *ml.Category
	dst      *string
}

// promptProfile asks for every profile field, starting from req.
func promptProfile(req qhttp.ProfileRequest, withAnyDisability bool) (qhttp.ProfileRequest, error) {
	var err error
	if req.Age, err = promptInt("Edad", req.Age, 18, 99); err != nil {
		return req, err
	}
	if req.Schooling, err = promptInt("Escolaridad Acumulada (en años)", req.Schooling, 0, 30); err != nil {
		return req, err
	}

	selects := []profileSelect{
		{"Género", ml.Gender, &req.Gender},
		{"¿Es afrodescendiente?", ml.Afrodescendant, &req.Afrodescendant},
		{"¿Habla una lengua indígena?", ml.IndigenousLanguage, &req.IndigenousLanguage},
	}
	if withAnyDisability {
		selects = append(selects, profileSelect{"¿Tiene alguna discapacidad?", ml.AnyDisability, &req.AnyDisability})
	}
	selects = append(selects,
		profileSelect{"Región", ml.Region, &req.Region},
		profileSelect{"Sector del Trabajo", ml.Sector, &req.Sector},
		profileSelect{"Tamaño de la localidad", ml.Locality, &req.Locality},
	)

	for _, s := range selects {
		if *s.dst, err = selectOne(s.label, s.category.Labels()); err != nil {
			return req, err
		}
	}
	return req, nil
}
