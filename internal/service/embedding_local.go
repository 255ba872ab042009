package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/docassist/docassist/internal/config"
	"github.com/docassist/docassist/internal/domain"
)

// LocalProvider is a deterministic feature-hashing embedder that needs no
// network. Unigrams and bigrams are hashed into Dimension() signed buckets and
// the result is L2-normalized.
type LocalProvider struct {
	model      string
	dimensions int
	maxRunes   int

	mu    sync.RWMutex
	ready bool
}

// NewLocalProvider creates an uninitialized local provider.
func NewLocalProvider(cfg *config.EmbeddingConfig) *LocalProvider {
	return &LocalProvider{
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxRunes:   cfg.MaxInputRunes,
	}
}

func (p *LocalProvider) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()
	return nil
}

func (p *LocalProvider) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, text)
}

func (p *LocalProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, text)
}

func (p *LocalProvider) embed(ctx context.Context, text string) ([]float32, error) {
	if !p.Ready() {
		return nil, domain.ErrProviderUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}

	vec := make([]float32, p.dimensions)
	tokens := tokenize(truncateRunes(text, p.maxRunes))
	for i, tok := range tokens {
		p.addFeature(vec, tok)
		if i > 0 {
			p.addFeature(vec, tokens[i-1]+" "+tok)
		}
	}

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func (p *LocalProvider) addFeature(vec []float32, feature string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(len(vec)))
	if sum>>63 == 1 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func (p *LocalProvider) Dimension() int {
	return p.dimensions
}

func (p *LocalProvider) Model() string {
	return p.model
}

func (p *LocalProvider) Close() error {
	p.mu.Lock()
	p.ready = false
	p.mu.Unlock()
	return nil
}
