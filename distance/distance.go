package distance

import (
	"context"
	"math"
	"strings"

	"github.com/pkg/errors"
	"googlemaps.github.io/maps"
)

// Estimator returns a sortable distance between two free text locations.
type Estimator interface {
	Distance(ctx context.Context, origin, destination string) (float64, error)
}

// Unreachable is returned for pairs the provider has no route for, it sorts last.
var Unreachable = math.Inf(1)

// Constant treats every destination as equally far, leaving the date as the only ordering.
type Constant struct{}

// Distance godoc
func (Constant) Distance(ctx context.Context, origin, destination string) (float64, error) {
	return 0, nil
}

// Google measures driving distance in meters with the Distance Matrix API.
type Google struct {
	client *maps.Client
}

// NewGoogle godoc
func NewGoogle(apiKey string, opts ...maps.ClientOption) (*Google, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("distance: google api key is required")
	}
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, errors.Wrap(err, "distance: create maps client")
	}
	return &Google{client: client}, nil
}

// Distance godoc
func (g *Google) Distance(ctx context.Context, origin, destination string) (float64, error) {
	res, err := g.client.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
		Origins:      []string{origin},
		Destinations: []string{destination},
	})
	if err != nil {
		return 0, errors.Wrap(err, "distance: distance matrix")
	}
	if len(res.Rows) == 0 || len(res.Rows[0].Elements) == 0 {
		return Unreachable, nil
	}
	element := res.Rows[0].Elements[0]
	if element == nil || element.Status != "OK" {
		return Unreachable, nil
	}
	return float64(element.Distance.Meters), nil
}

// Cached memoizes an estimator. Distances between two fixed strings do not change
// during a run so the memo lives as long as the process.
type Cached struct {
	next Estimator
	memo map[[2]string]float64
}

// NewCached godoc
func NewCached(next Estimator) *Cached {
	return &Cached{next: next, memo: make(map[[2]string]float64)}
}

// Distance godoc
func (c *Cached) Distance(ctx context.Context, origin, destination string) (float64, error) {
	key := [2]string{origin, destination}
	if d, ok := c.memo[key]; ok {
		return d, nil
	}
	d, err := c.next.Distance(ctx, origin, destination)
	if err != nil {
		return 0, err
	}
	c.memo[key] = d
	return d, nil
}
