package main

import (
	"crypto/ecdh"
	crand "crypto/rand"
	"fmt"
	"sort"
	"time"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/multiparty"
	"github.com/tuneinsight/lattigo/v6/ring"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
	"github.com/tuneinsight/lattigo/v6/utils/sampling"
)

// ============================================================================
// Threshold decryption: parties, collective keys, coordinator
// ============================================================================
//
// The secret key never exists in one place. Each of the n parties holds an
// additive share; the collective public, relinearization and Galois keys are
// generated by the standard multiparty protocols over common reference
// polynomials derived from a session seed. When t < n, the additive shares
// are additionally Shamir-reshared so any t parties can stand in for all n.
//
// Decryption is a key switch to the zero key: each party contributes a share
// with smudging noise, the coordinator aggregates exactly t (or n) of them
// and decodes with noise flooding. The coordinator holds no secret key
// material of the scheme; its only private key is the X25519 transport key
// the parties seal their shares to.

// decryptLogPrec is the log2 decoding precision of DecodePublic. The gap to
// the scale's precision is flooded with noise, preventing the decryption
// noise leakage that enables key recovery on CKKS (Li & Micciancio 2021).
const decryptLogPrec = 32

// party is one key-holding participant. It serves decryption requests from
// its channel; a party that is not started never responds and is
// indistinguishable from one that is offline.
type party struct {
	multiparty.Thresholdizer
	multiparty.Combiner

	i        int
	sk       *rlwe.SecretKey
	tsk      multiparty.ShamirSecretShare
	ssp      multiparty.ShamirPolynomial
	shamirPk multiparty.ShamirPublicPoint

	reqs chan partyRequest

	// delay artificially slows this party's share generation (tests only).
	delay time.Duration
}

type partyRequest struct {
	ping    bool
	ct      *rlwe.Ciphertext
	active  []multiparty.ShamirPublicPoint
	replies chan<- partyReply
}

type partyReply struct {
	party  int
	sealed []byte
	err    error
}

// serve answers pings and decryption requests until the request channel
// closes.
func (p *party) serve(params ckks.Parameters, coordinatorPK []byte, n int) {
	for req := range p.reqs {
		if req.ping {
			req.replies <- partyReply{party: p.i}
			continue
		}
		if p.delay > 0 {
			time.Sleep(p.delay)
		}
		sealed, err := p.decryptionShare(params, req, coordinatorPK, n)
		req.replies <- partyReply{party: p.i, sealed: sealed, err: err}
	}
}

// decryptionShare produces this party's sealed partial decryption of the
// request's ciphertext. With a strict quorum (t < n) the party first derives
// the additive key share standing in for the full party set.
func (p *party) decryptionShare(params ckks.Parameters, req partyRequest, coordinatorPK []byte, n int) ([]byte, error) {
	noise := ring.DiscreteGaussian{Sigma: 128.0, Bound: 768.0}
	ks, err := multiparty.NewKeySwitchProtocol(params, noise)
	if err != nil {
		return nil, fmt.Errorf("failed to create KeySwitch protocol: %v", err)
	}

	sk := p.sk
	if len(req.active) > 0 && len(req.active) < n {
		sk = rlwe.NewSecretKey(params)
		if err := p.GenAdditiveShare(req.active, p.shamirPk, p.tsk, sk); err != nil {
			return nil, fmt.Errorf("failed to derive quorum key share: %v", err)
		}
	}

	// Key switch to the zero key: aggregating all shares and applying them
	// yields an encryption under the zero key, i.e. the plaintext plus the
	// flooding noise.
	zeroSK := rlwe.NewSecretKey(params)
	share := ks.AllocateShare(req.ct.Level())
	ks.GenShare(sk, zeroSK, req.ct, &share)

	raw, err := share.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize share: %v", err)
	}
	return sealShare(raw, coordinatorPK)
}

// Coordinator runs bounded-wait threshold decryption over the parties.
type Coordinator struct {
	params  ckks.Parameters
	encoder *ckks.Encoder
	n, t    int
	wait    time.Duration
	parties []*party
	boxSK   *ecdh.PrivateKey
	boxPK   []byte
}

// setupParties generates per-party secret keys, the collective public key,
// the relinearization key, the Galois keys for the given rotations, and (for
// t < n) the Shamir resharing, then returns the evaluation material and the
// decryption coordinator. Any failure aborts the run: no pipeline stage can
// operate on partial key material.
func setupParties(params ckks.Parameters, n, t int, galEls []uint64, wait time.Duration) (*rlwe.PublicKey, *rlwe.MemEvaluationKeySet, *Coordinator, error) {
	kgen := rlwe.NewKeyGenerator(params)
	parties := make([]*party, n)
	for i := range parties {
		parties[i] = &party{
			i:    i,
			sk:   kgen.GenSecretKeyNew(),
			reqs: make(chan partyRequest, 8),
		}
	}

	sessionSeed := make([]byte, 32)
	if _, err := crand.Read(sessionSeed); err != nil {
		return nil, nil, nil, &KeyGenerationError{Phase: "session-seed", Err: err}
	}

	// Collective public key.
	ckg := multiparty.NewPublicKeyGenProtocol(params)
	crs, err := seededCRS(sessionSeed, "cpk")
	if err != nil {
		return nil, nil, nil, &KeyGenerationError{Phase: "public-key", Err: err}
	}
	pkCRP := ckg.SampleCRP(crs)
	pkAgg := ckg.AllocateShare()
	for _, p := range parties {
		sh := ckg.AllocateShare()
		ckg.GenShare(p.sk, pkCRP, &sh)
		ckg.AggregateShares(sh, pkAgg, &pkAgg)
	}
	pk := rlwe.NewPublicKey(params)
	ckg.GenPublicKey(pkAgg, pkCRP, pk)

	// Relinearization key, two rounds with per-party ephemeral keys.
	rkg := multiparty.NewRelinearizationKeyGenProtocol(params)
	crs, err = seededCRS(sessionSeed, "rlk")
	if err != nil {
		return nil, nil, nil, &KeyGenerationError{Phase: "relinearization-key", Err: err}
	}
	rlkCRP := rkg.SampleCRP(crs)
	ephSks := make([]*rlwe.SecretKey, n)
	r1 := make([]multiparty.RelinearizationKeyGenShare, n)
	r2 := make([]multiparty.RelinearizationKeyGenShare, n)
	for i, p := range parties {
		ephSks[i], r1[i], r2[i] = rkg.AllocateShare()
		rkg.GenShareRoundOne(p.sk, rlkCRP, ephSks[i], &r1[i])
	}
	r1Agg := r1[0]
	for i := 1; i < n; i++ {
		rkg.AggregateShares(r1Agg, r1[i], &r1Agg)
	}
	for i, p := range parties {
		rkg.GenShareRoundTwo(ephSks[i], p.sk, r1Agg, &r2[i])
	}
	r2Agg := r2[0]
	for i := 1; i < n; i++ {
		rkg.AggregateShares(r2Agg, r2[i], &r2Agg)
	}
	rlk := rlwe.NewRelinearizationKey(params)
	rkg.GenRelinearizationKey(r1Agg, r2Agg, rlk)

	// Galois keys for the slot-sum rotations, one shared CRP per element.
	gkg := multiparty.NewGaloisKeyGenProtocol(params)
	crs, err = seededCRS(sessionSeed, "gal")
	if err != nil {
		return nil, nil, nil, &KeyGenerationError{Phase: "galois-keys", Err: err}
	}
	gks := make([]*rlwe.GaloisKey, 0, len(galEls))
	for _, galEl := range galEls {
		crp := gkg.SampleCRP(crs)
		// AllocateShare carries GaloisElement 0, which would fail the
		// aggregation's element match: the first party's share seeds the
		// accumulator instead.
		var agg multiparty.GaloisKeyGenShare
		for i, p := range parties {
			sh := gkg.AllocateShare()
			if err := gkg.GenShare(p.sk, galEl, crp, &sh); err != nil {
				return nil, nil, nil, &KeyGenerationError{Phase: "galois-keys", Err: err}
			}
			if i == 0 {
				agg = sh
				continue
			}
			if err := gkg.AggregateShares(agg, sh, &agg); err != nil {
				return nil, nil, nil, &KeyGenerationError{Phase: "galois-keys", Err: err}
			}
		}
		gk := rlwe.NewGaloisKey(params)
		if err := gkg.GenGaloisKey(agg, crp, gk); err != nil {
			return nil, nil, nil, &KeyGenerationError{Phase: "galois-keys", Err: err}
		}
		gks = append(gks, gk)
	}
	evk := rlwe.NewMemEvaluationKeySet(rlk, gks...)

	// Shamir resharing for strict quorums.
	if t < n {
		shamirPks := make([]multiparty.ShamirPublicPoint, n)
		for i, p := range parties {
			p.Thresholdizer = multiparty.NewThresholdizer(params)
			p.tsk = p.AllocateThresholdSecretShare()
			p.shamirPk = multiparty.ShamirPublicPoint(i + 1)
			shamirPks[i] = p.shamirPk
			var err error
			if p.ssp, err = p.GenShamirPolynomial(t, p.sk); err != nil {
				return nil, nil, nil, &KeyGenerationError{Phase: "threshold-resharing", Err: err}
			}
		}
		for _, pi := range parties {
			for _, pj := range parties {
				sh := pi.AllocateThresholdSecretShare()
				pi.GenShamirSecretShare(pj.shamirPk, pi.ssp, &sh)
				if err := pj.Thresholdizer.AggregateShares(pj.tsk, sh, &pj.tsk); err != nil {
					return nil, nil, nil, &KeyGenerationError{Phase: "threshold-resharing", Err: err}
				}
			}
		}
		for _, p := range parties {
			p.Combiner = multiparty.NewCombiner(params.Parameters, p.shamirPk, shamirPks, t)
		}
	}

	boxSK, err := sealingKeypair()
	if err != nil {
		return nil, nil, nil, &KeyGenerationError{Phase: "transport-keys", Err: err}
	}

	c := &Coordinator{
		params:  params,
		encoder: ckks.NewEncoder(params),
		n:       n,
		t:       t,
		wait:    wait,
		parties: parties,
		boxSK:   boxSK,
		boxPK:   boxSK.PublicKey().Bytes(),
	}
	return pk, evk, c, nil
}

// seededCRS derives a labeled common reference string from the session seed,
// so every protocol's reference polynomials are distinct but reproducible.
func seededCRS(seed []byte, label string) (*sampling.KeyedPRNG, error) {
	key := make([]byte, 0, len(seed)+len(label))
	key = append(key, seed...)
	key = append(key, label...)
	return sampling.NewKeyedPRNG(key)
}

// Start launches the serve loops of the given parties, or of all parties
// when none are named. Parties not started never answer: they model
// registered-but-offline participants.
func (c *Coordinator) Start(online ...int) {
	if len(online) == 0 {
		for i := range c.parties {
			online = append(online, i)
		}
	}
	for _, i := range online {
		go c.parties[i].serve(c.params, c.boxPK, c.n)
	}
}

// Close shuts the party serve loops down. It must not race an in-flight
// Decrypt.
func (c *Coordinator) Close() {
	for _, p := range c.parties {
		close(p.reqs)
	}
}

// Decrypt performs threshold decryption of the ciphertext and returns the
// decoded slot values.
//
// Two phases under one deadline: first the coordinator discovers the quorum
// (the first t parties to answer a ping), then it requests exactly their
// shares. If either phase leaves it with fewer than t shares when the
// deadline expires, it reports how many it got and combines nothing.
func (c *Coordinator) Decrypt(ct *rlwe.Ciphertext) ([]float64, error) {
	deadline := time.After(c.wait)

	pings := make(chan partyReply, c.n)
	for _, p := range c.parties {
		select {
		case p.reqs <- partyRequest{ping: true, replies: pings}:
		default:
			// Saturated queue: the party is not keeping up, skip it.
		}
	}

	quorum := make([]int, 0, c.t)
	for len(quorum) < c.t {
		select {
		case rep := <-pings:
			quorum = append(quorum, rep.party)
		case <-deadline:
			return nil, &InsufficientSharesError{Received: len(quorum), Required: c.t}
		}
	}
	sort.Ints(quorum)

	var active []multiparty.ShamirPublicPoint
	if c.t < c.n {
		for _, i := range quorum {
			active = append(active, c.parties[i].shamirPk)
		}
	}

	replies := make(chan partyReply, c.t)
	for _, i := range quorum {
		select {
		case c.parties[i].reqs <- partyRequest{ct: ct, active: active, replies: replies}:
		default:
		}
	}

	noise := ring.DiscreteGaussian{Sigma: 128.0, Bound: 768.0}
	ks, err := multiparty.NewKeySwitchProtocol(c.params, noise)
	if err != nil {
		return nil, fmt.Errorf("failed to create KeySwitch protocol: %v", err)
	}

	agg := ks.AllocateShare(ct.Level())
	received := 0
	for received < c.t {
		select {
		case rep := <-replies:
			if rep.err != nil {
				return nil, fmt.Errorf("party %d failed to produce a share: %v", rep.party, rep.err)
			}
			raw, err := openShare(rep.sealed, c.boxSK)
			if err != nil {
				return nil, fmt.Errorf("failed to open share from party %d: %v", rep.party, err)
			}
			sh := ks.AllocateShare(ct.Level())
			if err := sh.UnmarshalBinary(raw); err != nil {
				return nil, fmt.Errorf("failed to deserialize share from party %d: %v", rep.party, err)
			}
			if err := ks.AggregateShares(sh, agg, &agg); err != nil {
				return nil, fmt.Errorf("failed to aggregate share from party %d: %v", rep.party, err)
			}
			received++
		case <-deadline:
			return nil, &InsufficientSharesError{Received: received, Required: c.t}
		}
	}

	ctOut := rlwe.NewCiphertext(c.params, 1, ct.Level())
	ks.KeySwitch(ct, agg, ctOut)

	pt := ckks.NewPlaintext(c.params, ctOut.Level())
	pt.Value = ctOut.Value[0]
	pt.MetaData = ctOut.MetaData

	values := make([]float64, c.params.MaxSlots())
	if err := c.encoder.ShallowCopy().DecodePublic(pt, values, decryptLogPrec); err != nil {
		return nil, fmt.Errorf("failed to decode: %v", err)
	}
	return values, nil
}
