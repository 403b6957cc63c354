package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/mmeshcher/exchange-counter/internal/model"
)

// Receipt содержит чек в Markdown и его печатную HTML-версию.
type Receipt struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

const receiptDateLayout = "02/01/2006 15:04:05"

var statusLabels = map[model.ReconciliationStatus]string{
	model.StatusBalanced: "Cuadrado",
	model.StatusOverage:  "Sobrante",
	model.StatusShortage: "Faltante",
}

var funcs = template.FuncMap{
	"money":  Money,
	"signed": SignedMoney,
	"amount": Amount,
	"date":   func(t time.Time) string { return t.Format(receiptDateLayout) },
	"cell":   escapeCell,
	"status": func(s model.ReconciliationStatus) string { return statusLabels[s] },
	"local":  func() model.Currency { return model.LocalCurrency },
}

var saleTemplate = template.Must(template.New("sale").Funcs(funcs).Parse(`# {{ cell .Settings.Name }}

RNC: {{ cell .Settings.TaxID }}  
Tel: {{ cell .Settings.Phone }}  
{{ cell .Settings.Address }}

## Compra de divisas ({{ .Sale.Currency }})

Recibo: {{ .Sale.ID }}  
Fecha: {{ date .Sale.Date }}  
Cajero: {{ cell .Sale.Cashier }}  
Tasa: {{ money .Sale.Rate local }}

| Billete | Cantidad | Subtotal |
|---:|---:|---:|
{{- range .Lines }}
| {{ money .Denomination $.Sale.Currency }} | {{ .Count }} | {{ money .Total $.Sale.Currency }} |
{{- end }}

**Total recibido:** {{ money .Sale.Amount .Sale.Currency }}  
**A pagar:** {{ money .Sale.LocalAmountPaid local }}

{{ cell .Settings.ReceiptMessage }}
`))

var shiftTemplate = template.Must(template.New("shift").Funcs(funcs).Parse(`# {{ cell .Settings.Name }}

## Cierre de caja

Turno: {{ .Shift.ID }}  
Cajero: {{ cell .Shift.UserName }}  
Apertura: {{ date .Shift.StartTime }}  
Cierre: {{ date .Shift.EndTime }}  
Operaciones: {{ .Shift.Transactions }}

### Resumen financiero ({{ local }})

| Concepto | Monto |
|---|---:|
| Fondo inicial | {{ money .Shift.StartAmount local }} |
| Compra de divisas | -{{ money .Shift.CurrencyPayouts local }} |
| Efectivo esperado | {{ money .Shift.ExpectedAmount local }} |
| Efectivo contado | {{ money .Shift.FinalAmount local }} |
| Diferencia | {{ signed .Shift.Difference local }} ({{ status .LocalStatus }}) |

### Posición de divisas

| Moneda | Apertura | Esperado | Contado | Diferencia |
|---|---:|---:|---:|---:|
{{- range .Currencies }}
| {{ .Currency }} | {{ money .Opening .Currency }} | {{ money .Expected .Currency }} | {{ money .Counted .Currency }} | {{ signed .Difference .Currency }} ({{ status .Status }}) |
{{- end }}
{{ range .Currencies }}{{ if .Lines }}
### Billetes recibidos {{ .Currency }}

| Billete | Cantidad | Subtotal |
|---:|---:|---:|
{{- $c := .Currency }}
{{- range .Lines }}
| {{ money .Denomination $c }} | {{ .Count }} | {{ money .Total $c }} |
{{- end }}
{{ end }}{{ end }}
### Operaciones del turno
{{ if .Sales }}
| Hora | Moneda | Monto | Tasa | Pagado |
|---|---|---:|---:|---:|
{{- range .Sales }}
| {{ date .Date }} | {{ .Currency }} | {{ money .Amount .Currency }} | {{ amount .Rate }} | {{ money .LocalAmountPaid local }} |
{{- end }}
{{ else }}
Sin operaciones.
{{ end }}`))

// DenominationLine описывает строку разбивки по номиналу.
type DenominationLine struct {
	Denomination float64
	Count        int
	Total        float64
}

// CurrencyPosition содержит итог сверки по одной иностранной валюте.
type CurrencyPosition struct {
	Currency   model.Currency
	Opening    float64
	Expected   float64
	Counted    float64
	Difference float64
	Status     model.ReconciliationStatus
	Lines      []DenominationLine
}

// SaleReceipt строит чек покупки валюты.
func SaleReceipt(sale model.SalesRecord, settings model.StoreSettings) (Receipt, error) {
	data := struct {
		Sale     model.SalesRecord
		Settings model.StoreSettings
		Lines    []DenominationLine
	}{
		Sale:     sale,
		Settings: settings,
		Lines:    breakdownLines(sale.Breakdown),
	}
	return render(saleTemplate, data)
}

// ShiftReceipt строит отчёт закрытия смены. classify задаёт статус расхождения.
func ShiftReceipt(
	closed model.ClosedShift,
	sales []model.SalesRecord,
	settings model.StoreSettings,
	classify func(float64) model.ReconciliationStatus,
) (Receipt, error) {
	received := make(map[model.Currency]model.Breakdown)
	for _, s := range sales {
		b, ok := received[s.Currency]
		if !ok {
			b = model.Breakdown{}
			received[s.Currency] = b
		}
		for denom, count := range s.Breakdown {
			b[denom] += count
		}
	}

	positions := make([]CurrencyPosition, 0, len(model.ForeignCurrencies()))
	for _, c := range model.ForeignCurrencies() {
		diff := closed.PerCurrencyDifference[c]
		positions = append(positions, CurrencyPosition{
			Currency:   c,
			Opening:    closed.OpeningForeign[c],
			Expected:   closed.PerCurrencyExpected[c],
			Counted:    closed.PerCurrencyFinal[c],
			Difference: diff,
			Status:     classify(diff),
			Lines:      breakdownLines(received[c]),
		})
	}

	data := struct {
		Shift       model.ClosedShift
		Settings    model.StoreSettings
		LocalStatus model.ReconciliationStatus
		Currencies  []CurrencyPosition
		Sales       []model.SalesRecord
	}{
		Shift:       closed,
		Settings:    settings,
		LocalStatus: classify(closed.Difference),
		Currencies:  positions,
		Sales:       sales,
	}
	return render(shiftTemplate, data)
}

// breakdownLines возвращает ненулевые номиналы по убыванию.
func breakdownLines(b model.Breakdown) []DenominationLine {
	denoms := make([]int, 0, len(b))
	for denom, count := range b {
		if count > 0 {
			denoms = append(denoms, denom)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(denoms)))

	lines := make([]DenominationLine, 0, len(denoms))
	for _, denom := range denoms {
		count := b[denom]
		lines = append(lines, DenominationLine{
			Denomination: float64(denom),
			Count:        count,
			Total:        float64(denom) * float64(count),
		})
	}
	return lines
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

func render(tmpl *template.Template, data any) (Receipt, error) {
	var md bytes.Buffer
	if err := tmpl.Execute(&md, data); err != nil {
		return Receipt{}, fmt.Errorf("render %s receipt: %w", tmpl.Name(), err)
	}

	var html bytes.Buffer
	if err := markdown.Convert(md.Bytes(), &html); err != nil {
		return Receipt{}, fmt.Errorf("convert %s receipt: %w", tmpl.Name(), err)
	}

	return Receipt{Markdown: md.String(), HTML: html.String()}, nil
}

var cellReplacer = strings.NewReplacer("|", `\|`, "\n", " ", "<", "&lt;", ">", "&gt;")

func escapeCell(s string) string {
	return cellReplacer.Replace(s)
}
