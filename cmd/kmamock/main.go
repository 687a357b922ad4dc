// Command kmamock serves a deterministic imitation of the KMA short-term
// forecast OpenAPI for local development and demos. Temperatures follow a
// smooth diurnal curve seeded by the grid cell, so "now vs yesterday"
// comparisons produce stable, plausible deltas without a real service key.
//
// Usage:
//
//	go run ./cmd/kmamock -addr :9100
//	KMA_BASE_URL=http://localhost:9100 KMA_API_KEY=any go run ./cmd/yesterdayd
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"
)

func main() {
	addr := flag.String("addr", ":9100", "listen address")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/getUltraSrtNcst", handleObservation)
	mux.HandleFunc("/getVilageFcst", handleForecast)

	log.Printf("kmamock listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}

// tempAt is the synthetic weather model: a diurnal sine peaking mid-afternoon,
// a slow seasonal sine, and a per-cell offset so neighboring cells differ.
func tempAt(nx, ny int, t time.Time) float64 {
	cellOffset := float64((nx*31+ny)%17) * 0.3
	diurnal := 6 * math.Sin(2*math.Pi*(float64(t.Hour())-9)/24)
	seasonal := 8 * math.Sin(2*math.Pi*(float64(t.YearDay())-100)/365)
	return math.Round((15+cellOffset+diurnal+seasonal)*10) / 10
}

func handleObservation(w http.ResponseWriter, r *http.Request) {
	nx, ny, base, ok := parseQuery(w, r)
	if !ok {
		return
	}
	writeResponse(w, []item{{
		Category:  "T1H",
		BaseDate:  base.Format("20060102"),
		BaseTime:  base.Format("1504"),
		Nx:        nx,
		Ny:        ny,
		ObsrValue: fmt.Sprintf("%.1f", tempAt(nx, ny, base)),
	}})
}

func handleForecast(w http.ResponseWriter, r *http.Request) {
	nx, ny, base, ok := parseQuery(w, r)
	if !ok {
		return
	}
	// Hourly TMP entries covering the 48 hours after publication, like the
	// real village forecast window.
	var items []item
	for h := 1; h <= 48; h++ {
		ft := base.Add(time.Duration(h) * time.Hour)
		items = append(items, item{
			Category:  "TMP",
			BaseDate:  base.Format("20060102"),
			BaseTime:  base.Format("1504"),
			FcstDate:  ft.Format("20060102"),
			FcstTime:  ft.Format("1504"),
			Nx:        nx,
			Ny:        ny,
			FcstValue: fmt.Sprintf("%.1f", tempAt(nx, ny, ft)),
		})
	}
	writeResponse(w, items)
}

func parseQuery(w http.ResponseWriter, r *http.Request) (nx, ny int, base time.Time, ok bool) {
	q := r.URL.Query()
	nx, errX := strconv.Atoi(q.Get("nx"))
	ny, errY := strconv.Atoi(q.Get("ny"))
	base, errT := time.Parse("200601021504", q.Get("base_date")+q.Get("base_time"))
	if errX != nil || errY != nil || errT != nil {
		writeError(w)
		return 0, 0, time.Time{}, false
	}
	return nx, ny, base, true
}

type item struct {
	Category  string `json:"category"`
	BaseDate  string `json:"baseDate"`
	BaseTime  string `json:"baseTime"`
	FcstDate  string `json:"fcstDate,omitempty"`
	FcstTime  string `json:"fcstTime,omitempty"`
	Nx        int    `json:"nx"`
	Ny        int    `json:"ny"`
	ObsrValue string `json:"obsrValue,omitempty"`
	FcstValue string `json:"fcstValue,omitempty"`
}

type response struct {
	Response struct {
		Header struct {
			ResultCode string `json:"resultCode"`
			ResultMsg  string `json:"resultMsg"`
		} `json:"header"`
		Body struct {
			TotalCount int `json:"totalCount"`
			Items      struct {
				Item []item `json:"item"`
			} `json:"items"`
		} `json:"body"`
	} `json:"response"`
}

func writeResponse(w http.ResponseWriter, items []item) {
	var resp response
	resp.Response.Header.ResultCode = "00"
	resp.Response.Header.ResultMsg = "NORMAL_SERVICE"
	resp.Response.Body.TotalCount = len(items)
	resp.Response.Body.Items.Item = items
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp) //nolint:errcheck // best-effort mock response
}

func writeError(w http.ResponseWriter) {
	var resp response
	resp.Response.Header.ResultCode = "10"
	resp.Response.Header.ResultMsg = "INVALID_REQUEST_PARAMETER_ERROR"
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp) //nolint:errcheck // best-effort mock response
}
