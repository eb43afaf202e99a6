// Package main computes Sen's slope and the Mann-Kendall test for a single
// year,value CSV series.
package main

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/sirupsen/logrus"

	"go.ngs.io/ecotrend/internal/adapter/store/csv"
	"go.ngs.io/ecotrend/internal/domain"
	"go.ngs.io/ecotrend/internal/logging"
)

func main() {
	path := flag.String("csv", "", "Path to a CSV file with year,value columns")
	dataDir := flag.String("data-dir", "", "Directory of <name>.csv series (with -name, or to list)")
	name := flag.String("name", "", "Series name inside -data-dir")
	alpha := flag.Float64("alpha", domain.DefaultSignificanceLevel, "Significance level")
	minSamples := flag.Int("min-samples", domain.DefaultMinSignificanceSamples, "Minimum valid samples for the test")
	flag.Parse()

	log := logging.New(os.Stderr)

	var series domain.Series
	var err error
	switch {
	case *path != "":
		series, err = csv.ReadSeriesFile(*path)
	case *dataDir != "" && *name != "":
		series, err = csv.NewSeriesStore(*dataDir).LoadSeries(*name)
	case *dataDir != "":
		names, err := csv.NewSeriesStore(*dataDir).ListSeries()
		if err != nil {
			log.WithError(err).Fatal("Failed to list series")
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Fatal("Failed to read series")
	}

	est := domain.DefaultTrendEstimator()
	est.Alpha = *alpha
	est.MinSignificanceSamples = *minSamples

	tr := est.Estimate(series)
	log.WithFields(logrus.Fields{"points": series.Len(), "valid": tr.N}).Debug("Series loaded")

	fmt.Printf("Years:        %d-%d (%d points, %d valid)\n",
		series.Years[0], series.Years[len(series.Years)-1], series.Len(), tr.N)
	fmt.Printf("Sen's slope:  %s per year\n", format(tr.Slope))

	mk, err := est.Test(series)
	if errors.Is(err, domain.ErrInsufficientData) {
		fmt.Printf("Mann-Kendall: undefined (%v)\n", err)
		return
	}
	fmt.Printf("Mann-Kendall: S=%.0f Var(S)=%.2f Z=%s p=%s tau=%s\n",
		mk.S, mk.VarS, format(mk.Z), format(mk.P), format(mk.Tau))
	fmt.Printf("Verdict:      %s at alpha=%g\n", mk.Trend, *alpha)
}

func format(v float64) string {
	if math.IsNaN(v) {
		return "undefined"
	}
	return fmt.Sprintf("%.6g", v)
}
