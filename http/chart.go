package http

import "laborcond/inference"

const (
	chartWidth   = 420
	chartHeight  = 300
	chartTop     = 40
	chartBottom  = 40
	chartLeft    = 60
	chartBarSize = 100
)

type bar struct {
	Label  string
	Value  float64
	Color  string
	X      float64
	Y      float64
	Width  float64
	Height float64
	LabelX float64
}

// barChart is the precomputed geometry of the wage comparison chart.
type barChart struct {
	Title  string
	YLabel string
	Width  int
	Height int
	BaseY  float64
	AxisX  float64
	Bars   []bar
}

func newWageChart(c inference.WageComparison) *barChart {
	return newBarChart("Comparación de Salarios por Discapacidad", "Salario por hora (MXN)", []bar{
		{Label: "Con discapacidad", Value: c.WithDisability, Color: "#1f77b4"},
		{Label: "Sin discapacidad", Value: c.WithoutDisability, Color: "#2ca02c"},
	})
}

func newBarChart(title, yLabel string, bars []bar) *barChart {
	plotHeight := float64(chartHeight - chartTop - chartBottom)
	baseY := float64(chartHeight - chartBottom)

	maxValue := 0.0
	for _, b := range bars {
		if b.Value > maxValue {
			maxValue = b.Value
		}
	}

	slot := float64(chartWidth-chartLeft) / float64(len(bars))
	out := make([]bar, len(bars))
	for i, b := range bars {
		height := 0.0
		if maxValue > 0 && b.Value > 0 {
			height = b.Value / maxValue * plotHeight
		}
		b.Width = chartBarSize
		b.X = chartLeft + slot*float64(i) + (slot-chartBarSize)/2
		b.Height = height
		b.Y = baseY - height
		b.LabelX = b.X + chartBarSize/2
		out[i] = b
	}

	return &barChart{
		Title:  title,
		YLabel: yLabel,
		Width:  chartWidth,
		Height: chartHeight,
		BaseY:  baseY,
		AxisX:  chartLeft,
		Bars:   out,
	}
}
