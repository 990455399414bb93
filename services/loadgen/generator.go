// Package loadgen produces synthetic transaction submissions and posts them
// to a running intake API.
package loadgen

import (
	// Go Internal Packages
	"math/rand"
	"strconv"
	"time"

	// Local Packages
	models "tx-intake/models"

	// External Packages
	"github.com/shopspring/decimal"
)

var (
	currencies   = []string{"USD", "EUR", "GBP", "INR"}
	vendors      = []string{"FreshMart", "Zen Yoga Studio", "FastNet", "TechStore", "CafeBrew", "SkillLearn", "FitLife Gym"}
	categories   = []string{"food", "education", "utilities", "electronics", "entertainment"}
	descriptions = []string{
		"Gym membership",
		"Online course purchase",
		"Grocery shopping",
		"Monthly internet bill",
		"Coffee shop visit",
		"Yoga subscription",
		"Electronics purchase",
	}
)

type Generator struct {
	rnd *rand.Rand
	now func() time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed)), now: time.Now}
}

// Next returns a submission with a random client id between 100000 and
// 99999999, an amount in [10, 310) with two decimals and a timestamp within
// the last day.
func (g *Generator) Next() models.SubmitRequest {
	clientID := g.rnd.Int63n(99999999-100000+1) + 100000
	cents := g.rnd.Int63n(30000) + 1000
	amount := decimal.New(cents, -2)
	ts := g.now().Add(-time.Duration(g.rnd.Int63n(int64(24 * time.Hour)))).UTC()

	return models.SubmitRequest{
		ClientID:    models.ClientID(strconv.FormatInt(clientID, 10)),
		Amount:      &amount,
		Currency:    pick(g.rnd, currencies),
		Description: pick(g.rnd, descriptions),
		Timestamp:   ts.Format(time.RFC3339Nano),
		Metadata: map[string]any{
			"vendor":   pick(g.rnd, vendors),
			"category": pick(g.rnd, categories),
		},
	}
}

// Batch returns n submissions. A duplicates fraction of them repeat an
// earlier submission of the same batch to exercise duplicate detection.
func (g *Generator) Batch(n int, duplicates float64) []models.SubmitRequest {
	out := make([]models.SubmitRequest, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 && g.rnd.Float64() < duplicates {
			out = append(out, out[g.rnd.Intn(i)])
			continue
		}
		out = append(out, g.Next())
	}
	return out
}

func pick(r *rand.Rand, from []string) string {
	return from[r.Intn(len(from))]
}
