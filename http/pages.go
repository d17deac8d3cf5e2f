package http

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"laborcond/inference"
	"laborcond/ml"
)

//go:embed templates/*.html
var templateFS embed.FS

var printer = message.NewPrinter(language.MustParse("es-MX"))

// formatWage renders an hourly wage the way the result metrics show it.
func formatWage(v float64) string {
	return printer.Sprintf("$%.2f por hora", v)
}

func formatMoney(v float64) string {
	return printer.Sprintf("$%.2f", v)
}

func formatProbability(p float64) string {
	return printer.Sprintf("%.2f", p)
}

type pages struct {
	guide    *template.Template
	benefits *template.Template
	wages    *template.Template
}

func newPages() (*pages, error) {
	funcs := template.FuncMap{
		"wage":        formatWage,
		"money":       formatMoney,
		"probability": formatProbability,
	}
	parse := func(name string) (*template.Template, error) {
		return template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
	}

	guide, err := parse("guide.html")
	if err != nil {
		return nil, fmt.Errorf("parse guide page: %w", err)
	}
	benefits, err := parse("benefits.html")
	if err != nil {
		return nil, fmt.Errorf("parse benefits page: %w", err)
	}
	wages, err := parse("wages.html")
	if err != nil {
		return nil, fmt.Errorf("parse wages page: %w", err)
	}
	return &pages{guide: guide, benefits: benefits, wages: wages}, nil
}

type selectField struct {
	Name     string
	Label    string
	Options  []string
	Selected string
}

type formView struct {
	Age       int
	Schooling int
	Selects   []selectField
	Errors    map[string]string
}

func newFormView(req ProfileRequest, withAnyDisability bool, fieldErrors map[string]string) formView {
	selects := []selectField{
		{Name: "sexo", Label: "Género", Options: ml.Gender.Labels(), Selected: req.Gender},
		{Name: "afrodescendiente", Label: "¿Es afrodescendiente?", Options: ml.Afrodescendant.Labels(), Selected: req.Afrodescendant},
		{Name: "lengua_indigena", Label: "¿Habla una lengua indígena?", Options: ml.IndigenousLanguage.Labels(), Selected: req.IndigenousLanguage},
	}
	if withAnyDisability {
		selects = append(selects, selectField{Name: "discapacidad", Label: "¿Tiene alguna discapacidad?", Options: ml.AnyDisability.Labels(), Selected: req.AnyDisability})
	}
	selects = append(selects,
		selectField{Name: "region", Label: "Región", Options: ml.Region.Labels(), Selected: req.Region},
		selectField{Name: "sector", Label: "Sector del Trabajo", Options: ml.Sector.Labels(), Selected: req.Sector},
		selectField{Name: "localidad", Label: "Tamaño de la localidad", Options: ml.Locality.Labels(), Selected: req.Locality},
	)
	return formView{Age: req.Age, Schooling: req.Schooling, Selects: selects, Errors: fieldErrors}
}

type guideView struct {
	Active          string
	SupportDocument string
	SupportMissing  string
}

type benefitView struct {
	Active   string
	Options  []string
	Selected string
	Form     formView
	Result   *inference.BenefitPrediction
	Error    string
}

type wageView struct {
	Active   string
	Options  []string
	Selected string
	Form     formView
	Result   *inference.WageComparison
	Chart    *barChart
	Error    string
}

func (h *Handlers) handleGuide(w http.ResponseWriter, r *http.Request) {
	view := guideView{Active: "guide"}
	if err := h.assets.checkSupportDocument(); err != nil {
		view.SupportMissing = missingDocumentMessage(h.assets.SupportDocument)
		h.logger.Warn("support document unavailable", zap.String("path", h.assets.SupportDocument), zap.Error(err))
	} else {
		view.SupportDocument = "/soporte"
	}
	h.render(w, h.pages.guide, http.StatusOK, view)
}

func (h *Handlers) handleBenefitForm(w http.ResponseWriter, r *http.Request) {
	options := h.registry.BenefitNames()
	selected := r.URL.Query().Get("prestacion")
	if selected == "" {
		selected = options[0]
	}
	h.render(w, h.pages.benefits, http.StatusOK, benefitView{
		Active:   "benefits",
		Options:  options,
		Selected: selected,
		Form:     newFormView(DefaultProfileRequest(), true, nil),
	})
}

func (h *Handlers) handleBenefitSubmit(w http.ResponseWriter, r *http.Request) {
	view := benefitView{Active: "benefits", Options: h.registry.BenefitNames()}

	var req BenefitRequest
	err := h.parseForm(r, &req)
	if err == nil {
		var prediction inference.BenefitPrediction
		prediction, err = h.classify(r.Context(), req.Benefit, req.ProfileRequest)
		if err == nil {
			view.Result = &prediction
		}
	}
	view.Selected = req.Benefit
	view.Form = newFormView(req.ProfileRequest, true, fieldErrors(err))

	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
		view.Error = userMessage(err)
		h.logFailure(r, status, err)
	}
	h.render(w, h.pages.benefits, status, view)
}

func (h *Handlers) handleWageForm(w http.ResponseWriter, r *http.Request) {
	options := h.registry.DisabilityLabels()
	selected := r.URL.Query().Get("tipo_discapacidad")
	if selected == "" {
		selected = options[0]
	}
	h.render(w, h.pages.wages, http.StatusOK, wageView{
		Active:   "wages",
		Options:  options,
		Selected: selected,
		Form:     newFormView(DefaultProfileRequest(), false, nil),
	})
}

func (h *Handlers) handleWageSubmit(w http.ResponseWriter, r *http.Request) {
	view := wageView{Active: "wages", Options: h.registry.DisabilityLabels()}

	var req WageRequest
	err := h.parseForm(r, &req)
	if err == nil {
		var comparison inference.WageComparison
		comparison, err = h.compare(r.Context(), req.Disability, req.ProfileRequest)
		if err == nil {
			view.Result = &comparison
			view.Chart = newWageChart(comparison)
		}
	}
	view.Selected = req.Disability
	view.Form = newFormView(req.ProfileRequest, false, fieldErrors(err))

	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
		view.Error = userMessage(err)
		h.logFailure(r, status, err)
	}
	h.render(w, h.pages.wages, status, view)
}

func (h *Handlers) parseForm(r *http.Request, dst any) error {
	if err := r.ParseForm(); err != nil {
		return &ValidationError{Fields: map[string]string{"form": err.Error()}}
	}
	return decodeForm(r.PostForm, dst)
}

func fieldErrors(err error) map[string]string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	return nil
}

func (h *Handlers) logFailure(r *http.Request, status int, err error) {
	level := h.logger.Info
	if status >= http.StatusInternalServerError {
		level = h.logger.Error
	}
	level("form submission failed",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err))
}

// render executes into a buffer first so a template failure can still
// produce a clean 500.
func (h *Handlers) render(w http.ResponseWriter, tmpl *template.Template, status int, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		h.logger.Error("template execution failed", zap.String("template", tmpl.Name()), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Assets locates the static directory and the downloadable support document.
type Assets struct {
	Dir             string
	SupportDocument string
}

func (a Assets) checkSupportDocument() error {
	if a.SupportDocument == "" {
		return os.ErrNotExist
	}
	info, err := os.Stat(a.SupportDocument)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", a.SupportDocument)
	}
	return nil
}

func missingDocumentMessage(path string) string {
	return fmt.Sprintf("El archivo no se encontró en la ruta especificada: %s. Verifica la ubicación.", path)
}

func (h *Handlers) handleSupportDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.assets.checkSupportDocument(); err != nil {
		h.logger.Warn("support document unavailable", zap.String("path", h.assets.SupportDocument), zap.Error(err))
		respondError(w, http.StatusNotFound, missingDocumentMessage(h.assets.SupportDocument), nil)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="Soporte.pdf"`)
	http.ServeFile(w, r, h.assets.SupportDocument)
}

func (h *Handlers) staticHandler() http.Handler {
	if h.assets.Dir == "" {
		return http.NotFoundHandler()
	}
	return http.StripPrefix("/static/", http.FileServer(http.Dir(h.assets.Dir)))
}
