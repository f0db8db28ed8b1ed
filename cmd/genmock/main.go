// Command genmock writes a deterministic mixed-source fixture for the ETL:
// Weather Underground rows for both stations, an InfoClimat hourly bundle,
// and a handful of deliberately broken records.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -date 2024-10-01 \
//	  -jsonl-out data/mock/observations_011024.jsonl \
//	  -xlsx-out data/mock/ichtegem_011024.xlsx
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/weather-station-etl/internal/adapter/jsonl"
	"github.com/couchcryptid/weather-station-etl/internal/domain"
	"github.com/xuri/excelize/v2"
)

// wuColumns is the workbook column order of a Weather Underground daily sheet.
var wuColumns = []string{
	"Time", "Temperature", "Dew Point", "Humidity", "Wind", "Speed", "Gust",
	"Pressure", "Precip. Rate.", "Precip. Accum.", "UV", "Solar",
}

var compass = []string{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE", "S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}

const infoClimatStation = "07015"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dateFlag := flag.String("date", "2024-10-01", "calendar day to generate (YYYY-MM-DD)")
	interval := flag.Duration("interval", 5*time.Minute, "Weather Underground sampling interval")
	jsonlOut := flag.String("jsonl-out", "", "output path for the JSONL fixture")
	xlsxOut := flag.String("xlsx-out", "", "optional output path for an Ichtegem workbook")
	defects := flag.Bool("defects", true, "append records that exercise every rejection reason")
	flag.Parse()

	if *jsonlOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -jsonl-out")
	}
	day, err := time.Parse("2006-01-02", *dateFlag)
	if err != nil {
		return fmt.Errorf("parse -date: %w", err)
	}
	if *interval < time.Minute {
		return fmt.Errorf("-interval must be at least 1m")
	}
	sheet := day.Format(domain.DefaultPartitionLayout)

	var envs []domain.Envelope
	ichtegem := wuRows(day, *interval, 0)
	for _, row := range ichtegem {
		envs = append(envs, domain.Envelope{Source: "wu_ichtegem", Context: sheet, Data: row})
	}
	for _, row := range wuRows(day, *interval, 1.3) {
		envs = append(envs, domain.Envelope{
			Source:  "wu_lamadeleine",
			Context: sheet,
			Data:    map[string]any{domain.AirbyteEnvelope: row},
		})
	}
	envs = append(envs, domain.Envelope{Source: domain.SourceInfoClimat, Data: infoClimatBundle(day)})
	if *defects {
		envs = append(envs, defectRecords(sheet, ichtegem[0])...)
	}

	if err := writeJSONL(*jsonlOut, envs); err != nil {
		return fmt.Errorf("writing JSONL fixture: %w", err)
	}
	log.Printf("wrote %d envelopes: %s", len(envs), *jsonlOut)

	if *xlsxOut != "" {
		if err := writeWorkbook(*xlsxOut, sheet, ichtegem); err != nil {
			return fmt.Errorf("writing workbook: %w", err)
		}
		log.Printf("wrote %d rows to sheet %s: %s", len(ichtegem), sheet, *xlsxOut)
	}
	return nil
}

// wuRows renders one day of imperial-unit readings. offset shifts the
// temperature curve so the two stations differ.
func wuRows(day time.Time, interval time.Duration, offset float64) []map[string]any {
	var rows []map[string]any
	accum := 0.0
	for t := day.Add(4 * time.Minute); t.Before(day.Add(24 * time.Hour)); t = t.Add(interval) {
		h := t.Sub(day).Hours()
		phase := 2 * math.Pi * (h - 9) / 24
		tempF := 55 + offset - 6*math.Cos(phase)
		humidity := 88 - 15*math.Sin(math.Pi*h/24)
		dewF := tempF - (100-humidity)/5*1.8
		wind := 6 + 4*math.Sin(phase/2)
		rate := 0.0
		if h >= 14 && h < 16 {
			rate = 0.02
		}
		accum += rate * interval.Hours()
		solar := math.Max(0, 450*math.Sin(math.Pi*(h-7)/12))

		rows = append(rows, map[string]any{
			"Time":           t.Format("3:04 PM"),
			"Temperature":    fmt.Sprintf("%.1f °F", tempF),
			"Dew Point":      fmt.Sprintf("%.1f °F", dewF),
			"Humidity":       fmt.Sprintf("%.0f %%", humidity),
			"Wind":           compass[int(h*2)%len(compass)],
			"Speed":          fmt.Sprintf("%.1f mph", wind),
			"Gust":           fmt.Sprintf("%.1f mph", wind*1.4),
			"Pressure":       fmt.Sprintf("%.2f in", 29.92+0.05*math.Sin(phase)),
			"Precip. Rate.":  fmt.Sprintf("%.2f in", rate),
			"Precip. Accum.": fmt.Sprintf("%.2f in", accum),
			"UV":             fmt.Sprintf("%.0f", solar/100),
			"Solar":          fmt.Sprintf("%.0f w/m²", solar),
		})
	}
	return rows
}

// infoClimatBundle renders one day of hourly metric readings in the
// station-keyed bundle form.
func infoClimatBundle(day time.Time) map[string]any {
	hourly := make([]any, 0, 24)
	for h := range 24 {
		t := day.Add(time.Duration(h) * time.Hour)
		phase := 2 * math.Pi * (float64(h) - 9) / 24
		hourly = append(hourly, map[string]any{
			"id_station":     infoClimatStation,
			"dh_utc":         t.Format("2006-01-02 15:04:05"),
			"temperature":    fmt.Sprintf("%.1f", 12-3*math.Cos(phase)),
			"pression":       fmt.Sprintf("%.1f", 1013.2+1.5*math.Sin(phase)),
			"humidite":       fmt.Sprintf("%.0f", 85-10*math.Sin(math.Pi*float64(h)/24)),
			"point_de_rosee": fmt.Sprintf("%.1f", 9.5-math.Cos(phase)),
			"visibilite":     "20000",
			"vent_moyen":     fmt.Sprintf("%.1f", 11+5*math.Sin(phase/2)),
			"vent_rafales":   fmt.Sprintf("%.1f", 18+7*math.Sin(phase/2)),
			"vent_direction": fmt.Sprintf("%d", (h*15)%360),
			"pluie_1h":       "0",
			"pluie_3h":       "0",
			"neige_au_sol":   nil,
			"nebulosite":     fmt.Sprintf("%d", h%9),
			"temps_omm":      nil,
		})
	}
	return map[string]any{
		"status": "OK",
		"stations": []any{map[string]any{
			"id":        infoClimatStation,
			"name":      "Lille-Lesquin",
			"latitude":  50.57,
			"longitude": 3.0975,
			"elevation": 47,
			"type":      "synop",
		}},
		"hourly": map[string]any{
			infoClimatStation: hourly,
			"_params":         []any{"temperature", "pression", "humidite"},
		},
	}
}

// defectRecords returns one record per per-record failure mode.
func defectRecords(sheet string, sample map[string]any) []domain.Envelope {
	clone := func(edit func(map[string]any)) map[string]any {
		row := make(map[string]any, len(sample))
		for k, v := range sample {
			row[k] = v
		}
		edit(row)
		return row
	}
	return []domain.Envelope{
		// duplicate of the first Ichtegem row
		{Source: "wu_ichtegem", Context: sheet, Data: clone(func(map[string]any) {})},
		// unknown source tag
		{Source: "wu_unknown", Context: sheet, Data: clone(func(map[string]any) {})},
		// unresolvable time
		{Source: "wu_ichtegem", Context: sheet, Data: clone(func(r map[string]any) { r["Time"] = "25:61" })},
		// out-of-range humidity, rejected at load
		{Source: "wu_ichtegem", Context: sheet, Data: clone(func(r map[string]any) {
			r["Time"] = "11:57 PM"
			r["Humidity"] = "140 %"
		})},
		// unparseable pressure, nulled with a warning
		{Source: "wu_ichtegem", Context: sheet, Data: clone(func(r map[string]any) {
			r["Time"] = "11:56 PM"
			r["Pressure"] = "--.-- in"
		})},
	}
}

func writeJSONL(path string, envs []domain.Envelope) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jsonl.Write(f, envs); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeWorkbook(path, sheet string, rows []map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	header := make([]any, len(wuColumns))
	for i, c := range wuColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range rows {
		cells := make([]any, len(wuColumns))
		for j, c := range wuColumns {
			cells[j] = row[c]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
