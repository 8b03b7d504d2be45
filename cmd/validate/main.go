// Command validate checks a locally produced spatial-join export against a
// reference export of the same table. It compares row counts, sentinel
// assignment rates, and per-record cell indexes, and fails when the success
// rates diverge by more than the allowed tolerance.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -produced data/sr_hex_joined.csv.gz \
//	  -reference data/sr_hex.csv.gz
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/couchcryptid/service-request-etl/internal/adapter/file"
	"github.com/couchcryptid/service-request-etl/internal/domain"
)

// rateTolerance is the maximum allowed difference between the produced and
// reference join success rates.
const rateTolerance = 0.05

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	produced := flag.String("produced", "", "path to the locally produced joined export")
	reference := flag.String("reference", "", "path to the reference joined export")
	flag.Parse()

	if *produced == "" || *reference == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*produced, *reference); code != 0 {
		os.Exit(code)
	}
}

func run(producedPath, referencePath string) int {
	fmt.Println("=== Spatial Join Validation ===")
	fmt.Println()

	produced, err := file.ReadJoined(producedPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load produced export: %v\n", err)
		return 1
	}
	reference, err := file.ReadJoined(referencePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load reference export: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateCounts(produced, reference),
		validateRates(produced, reference),
		validateCells(produced, reference),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-40s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d produced, %d reference\n", len(produced), len(reference))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i >= 20 {
				fmt.Printf("  ... and %d more\n", len(p.errors)-i)
				break
			}
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// Phase 1: row counts.

func validateCounts(produced, reference []domain.ServiceRequest) *phase {
	p := &phase{name: "Phase 1: Row Counts"}
	if len(produced) != len(reference) {
		p.errorf("produced has %d rows, reference has %d", len(produced), len(reference))
	}
	return p
}

// Phase 2: sentinel assignment rates. The two exports may disagree on
// individual borderline records, but their overall success rates must stay
// within tolerance.

func validateRates(produced, reference []domain.ServiceRequest) *phase {
	p := &phase{name: "Phase 2: Success Rates"}

	producedRate := successRate(produced)
	referenceRate := successRate(reference)
	delta := math.Abs(producedRate - referenceRate)

	fmt.Printf("  produced success rate:  %.4f (%d/%d sentinel)\n",
		producedRate, sentinelCount(produced), len(produced))
	fmt.Printf("  reference success rate: %.4f (%d/%d sentinel)\n",
		referenceRate, sentinelCount(reference), len(reference))
	fmt.Printf("  delta: %.4f (tolerance %.2f)\n", delta, rateTolerance)

	if delta > rateTolerance {
		p.errorf("success rate delta %.4f exceeds tolerance %.2f", delta, rateTolerance)
	}
	return p
}

// Phase 3: per-record cell agreement, keyed by notification number. Only
// records present in both exports are compared.

func validateCells(produced, reference []domain.ServiceRequest) *phase {
	p := &phase{name: "Phase 3: Per-Record Cells"}

	refByID := make(map[string]uint64, len(reference))
	for i := range reference {
		if id := reference[i].NotificationNumber; id != "" {
			refByID[id] = reference[i].HexIndex
		}
	}

	var compared, mismatched int
	for i := range produced {
		id := produced[i].NotificationNumber
		if id == "" {
			continue
		}
		refIdx, ok := refByID[id]
		if !ok {
			continue
		}
		compared++
		if produced[i].HexIndex != refIdx {
			mismatched++
			p.errorf("record %s: produced cell %d, reference cell %d", id, produced[i].HexIndex, refIdx)
		}
	}

	fmt.Printf("  compared %d records, %d mismatched\n", compared, mismatched)
	return p
}

func sentinelCount(requests []domain.ServiceRequest) int {
	n := 0
	for i := range requests {
		if requests[i].HexIndex == domain.SentinelHexIndex {
			n++
		}
	}
	return n
}

func successRate(requests []domain.ServiceRequest) float64 {
	if len(requests) == 0 {
		return 0
	}
	return 1 - float64(sentinelCount(requests))/float64(len(requests))
}
