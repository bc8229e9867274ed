package main

import (
	crand "crypto/rand"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// ============================================================================
// Pipeline
// ============================================================================
//
// Run wires the stages together: validate the configuration, prepare the
// vectors, generate the collective keys, encrypt, score every item against
// the query, reduce the scores to their encrypted maximum, and decide. The
// plaintext baseline runs on the same inputs so the report can quantify the
// approximation error of the encrypted path.

// Run executes one full uniqueness check. A nil query and database trigger
// the synthetic scenario: cfg.DatabaseSize+1 seeded unit-norm vectors, the
// first of which is the query.
func Run(cfg Config, query []float64, db [][]float64, logger *log.Logger) (*RunReport, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	tTotal := time.Now()

	if len(db) > 0 {
		cfg.DatabaseSize = len(db)
	}
	if len(query) > 0 && cfg.Dimension == 0 {
		cfg.Dimension = len(query)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	params, err := getParams(cfg.LogN)
	if err != nil {
		return nil, &ConfigurationError{Field: "log_n", Reason: err.Error()}
	}
	logger.Printf("parameters: logN=%d levels=%d slots=%d scale=2^%d",
		cfg.LogN, params.MaxLevel(), params.MaxSlots(), params.LogDefaultScale())

	query, items, itemIdx, skipped, err := prepareInputs(cfg, query, db)
	if err != nil {
		return nil, err
	}
	for _, e := range skipped {
		logger.Printf("skipped: %v", e)
	}
	ptScores, ptMax, ptArgmax := plaintextBaseline(query, items)
	ptArgmax = itemIdx[ptArgmax]

	// Collective keys for the whole run: encryption, relinearization, and the
	// slot-sum rotations.
	tSetup := time.Now()
	rots := slotSumRotations(cfg.Dimension)
	galEls := make([]uint64, len(rots))
	for i, k := range rots {
		galEls[i] = params.GaloisElement(k)
	}
	pk, evk, coord, err := setupParties(params, cfg.Parties, cfg.DecryptionThreshold,
		galEls, time.Duration(cfg.QuorumWaitMS)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	coord.Start()
	defer coord.Close()

	eng := newEngine(params, pk, evk, cfg.effectiveDepthBudget(params.MaxLevel()))
	approx, err := newAbsApprox(cfg.AbsDegree, params.EncodingPrecision())
	if err != nil {
		return nil, err
	}
	blindSeed := make([]byte, 32)
	if _, err := crand.Read(blindSeed); err != nil {
		return nil, &KeyGenerationError{Phase: "blinding-seed", Err: err}
	}
	blind, err := newBlinder(blindSeed)
	if err != nil {
		return nil, err
	}
	setupMS := time.Since(tSetup).Seconds() * 1e3
	logger.Printf("keys: %d parties, quorum %d, %d rotation keys, abs degree %d (max err %.2e)",
		cfg.Parties, cfg.DecryptionThreshold, len(galEls), approx.degree, approx.MaxErr)

	tEncrypt := time.Now()
	encQ, err := eng.EncryptQuery(query)
	if err != nil {
		return nil, err
	}
	encItems, err := encryptItems(eng, items, itemIdx, cfg.Workers)
	if err != nil {
		return nil, err
	}
	encryptMS := time.Since(tEncrypt).Seconds() * 1e3
	logger.Printf("encrypted query and %d items", len(encItems))

	tSim := time.Now()
	sim := newSimilarityComputer(eng, cfg.Workers, cfg.BatchSize)
	scores, itemErrs, err := sim.ComputeAll(encQ, encItems)
	if err != nil {
		return nil, err
	}
	for _, e := range itemErrs {
		logger.Printf("skipped: %v", e)
		skipped = append(skipped, e)
	}
	live := make([]*EncryptedScore, 0, len(scores))
	for _, sc := range scores {
		if sc != nil {
			live = append(live, sc)
		}
	}
	if len(live) == 0 {
		return nil, &ValidationError{Index: -1, Reason: "no valid database items"}
	}
	simMS := time.Since(tSim).Seconds() * 1e3
	logger.Printf("similarity: %d encrypted scores", len(live))

	tReduce := time.Now()
	red := newMaxReducer(eng, approx, cfg.Workers)
	encMax, trace, err := red.Reduce(live)
	if err != nil {
		return nil, err
	}
	reduceMS := time.Since(tReduce).Seconds() * 1e3
	logger.Printf("reduction: %d rounds over %d scores", trace.Rounds, trace.Inputs)

	tDecide := time.Now()
	dm := newDecisionMaker(eng, coord, cfg.Threshold, cfg.DisclosureMode, blind)
	dec, err := dm.Decide(encMax)
	if err != nil {
		return nil, err
	}
	decideMS := time.Since(tDecide).Seconds() * 1e3
	logger.Printf("decision: unique=%v (%s disclosure)", dec.IsUnique, dec.Mode)

	timings := Timings{
		SetupMS:      setupMS,
		EncryptMS:    encryptMS,
		SimilarityMS: simMS,
		ReduceMS:     reduceMS,
		DecideMS:     decideMS,
		TotalMS:      time.Since(tTotal).Seconds() * 1e3,
	}
	return buildReport(cfg, dec, ptScores, ptMax, ptArgmax, trace, approx, skipped, timings)
}

// prepareInputs resolves the run's vectors: either the synthetic seeded set,
// or the caller's query and database normalized to unit length. Invalid
// database items are skipped individually; an invalid query aborts. The
// returned index slice maps each kept item back to its original position.
func prepareInputs(cfg Config, query []float64, db [][]float64) ([]float64, [][]float64, []int, []error, error) {
	if query == nil && db == nil {
		vecs, err := generateVectors(cfg.DatabaseSize+1, cfg.Dimension, cfg.Seed)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		items := vecs[1:]
		idx := make([]int, len(items))
		for i := range idx {
			idx[i] = i
		}
		return vecs[0], items, idx, nil, nil
	}
	if query == nil || db == nil {
		return nil, nil, nil, nil, &ValidationError{Index: -1, Reason: "query and database must be provided together"}
	}
	if len(query) != cfg.Dimension {
		return nil, nil, nil, nil, &ValidationError{
			Index:  -1,
			Reason: fmt.Sprintf("dimension %d does not match configured dimension %d", len(query), cfg.Dimension),
		}
	}
	q, err := normalizeL2(query)
	if err != nil {
		return nil, nil, nil, nil, &ValidationError{Index: -1, Reason: err.Error()}
	}

	var items [][]float64
	var idx []int
	var skipped []error
	for i, item := range db {
		if len(item) != cfg.Dimension {
			skipped = append(skipped, &ValidationError{
				Index:  i,
				Reason: fmt.Sprintf("dimension %d does not match configured dimension %d", len(item), cfg.Dimension),
			})
			continue
		}
		ni, err := normalizeL2(item)
		if err != nil {
			skipped = append(skipped, &ValidationError{Index: i, Reason: err.Error()})
			continue
		}
		items = append(items, ni)
		idx = append(idx, i)
	}
	if len(items) == 0 {
		return nil, nil, nil, nil, &ValidationError{Index: -1, Reason: "no valid database items"}
	}
	return q, items, idx, skipped, nil
}

// encryptItems encrypts the database in parallel, at the prime scale the
// similarity products need.
func encryptItems(eng *Engine, items [][]float64, itemIdx []int, workers int) ([]*EncryptedVector, error) {
	out := make([]*EncryptedVector, len(items))
	errs := make([]error, len(items))

	tasks := make(chan int, len(items))
	for i := range items {
		tasks <- i
	}
	close(tasks)

	if workers > len(items) {
		workers = len(items)
	}
	if workers < 1 {
		workers = 1
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				out[i], errs[i] = eng.EncryptItem(items[i], itemIdx[i])
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
