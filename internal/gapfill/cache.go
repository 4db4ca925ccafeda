package gapfill

import (
	"strconv"
	"strings"
)

// model is a fitted regression for one ordered station combination.
// err is set when the combination could not be fit.
type model struct {
	coef []float64
	rmse float64
	err  error
}

// modelCache memoizes fitted models by station combination for a single variable
// of a single run.
type modelCache struct {
	models map[string]model
	hits   int
	misses int
}

func newModelCache() *modelCache {
	return &modelCache{models: make(map[string]model)}
}

// comboKey builds the key for an ordered combination of station indices, target first.
func comboKey(stations []int) string {
	var b strings.Builder
	for i, s := range stations {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(strconv.Itoa(s))
	}
	return b.String()
}

// get returns the cached model for key, fitting and storing it on a miss.
func (c *modelCache) get(key string, fit func() model) model {
	if m, ok := c.models[key]; ok {
		c.hits++
		return m
	}
	c.misses++
	m := fit()
	c.models[key] = m
	return m
}

func (c *modelCache) len() int { return len(c.models) }
