package conjecture

import (
	"bytes"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/exp/slices"
)

// Engine is the driver (C4): it owns the one PRNG, the prefix trie, the
// target selector, and the health monitor, and sequences reuse-from-
// corpus, generation/mutation, and shrinking against budgets.
//
// Every observable — a trie update, a selector update, a health
// observation, a budget check — happens strictly after the test function
// returns, in the order the driver schedules test cases, so that a fixed
// seed, settings, database, and test function reproduce the same call
// sequence and outcome.
type Engine struct {
	settings *Settings
	rnd      *rand.Rand
	testFn   func(*Data)
	shrinker Shrinker

	databaseKey string

	trie     *Trie
	selector *TargetSelector
	health   *HealthMonitor
	events   eventCache
	cap      int

	callCount      int
	validExamples  int
	shrinks        int
	testCounterSeq int

	interestingExamples map[InterestingOrigin]*Data
	shrunkExamples      map[InterestingOrigin]bool

	zeroBoundQueue []*Data

	startTime  time.Time
	exitReason ExitReason
	runErr     error
}

// NewEngine constructs a driver for testFn, seeded deterministically by
// seed. databaseKey identifies this test's corpus in settings.Database;
// shrinker may be nil, in which case the shrink phase only performs the
// replay-and-confirm handshake without further minimization.
func NewEngine(testFn func(*Data), settings *Settings, seed int64, databaseKey string, shrinker Shrinker) *Engine {
	if settings == nil {
		settings = NewSettings()
	}
	cap := settings.cap()

	events, _ := lru.New[uint64, string](4096)
	rnd := rand.New(rand.NewSource(seed))

	return &Engine{
		settings:            settings,
		rnd:                 rnd,
		testFn:              testFn,
		shrinker:            shrinker,
		databaseKey:         databaseKey,
		trie:                NewTrie(cap),
		selector:            NewTargetSelector(rnd),
		health:              NewHealthMonitor(NopHealthCheckReporter{}),
		events:              events,
		cap:                 cap,
		interestingExamples: make(map[InterestingOrigin]*Data),
		shrunkExamples:      make(map[InterestingOrigin]bool),
	}
}

// WithHealthReporter installs a custom health-check reporter.
func (e *Engine) WithHealthReporter(r HealthCheckReporter) *Engine {
	e.health = NewHealthMonitor(r)
	return e
}

func (e *Engine) nextTestCounter() int {
	e.testCounterSeq++
	return e.testCounterSeq
}

// ExitReason reports why the last Run finished.
func (e *Engine) ExitReason() ExitReason { return e.exitReason }

// Err returns the error, other than a budget exit or a flaky-example
// detection, that ended the last Run, if any. A panic from the user test
// function is not recorded here: runTestFunction saves the buffer and
// re-raises it, so it propagates out of Run.
func (e *Engine) Err() error { return e.runErr }

// CallCount, ValidExamples, Shrinks report the driver's accounting, used
// by the determinism property and by callers wanting progress feedback.
func (e *Engine) CallCount() int     { return e.callCount }
func (e *Engine) ValidExamples() int { return e.validExamples }
func (e *Engine) Shrinks() int       { return e.shrinks }

// InterestingExamples returns the best known TestData per distinct
// interesting origin.
func (e *Engine) InterestingExamples() map[InterestingOrigin]*Data {
	return e.interestingExamples
}

// sortKeyCmp orders buffers by (length, lexicographic): shorter is smaller,
// ties broken bytewise.
func sortKeyCmp(a, b []byte) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return bytes.Compare(a, b)
}

func sortKeyLess(a, b []byte) bool { return sortKeyCmp(a, b) < 0 }

// runTestFunction calls the user test function, recovering exactly one
// panic per call. A StopTestSignal whose counter matches this data
// object's own is consumed silently (a normal mid-test bailout); any other
// panic — including a mismatched StopTestSignal — is preceded by saving
// the offending buffer to the primary database key, then re-raised.
func (e *Engine) runTestFunction(data *Data) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if sig, ok := r.(*StopTestSignal); ok && sig.Counter == data.TestCounter() {
			return
		}
		e.saveBuffer(data.Buffer())
		panic(r)
	}()
	e.testFn(data)
}

// execute runs a single fresh test case through drawFn, records it, and
// returns the data plus any budget-exit error.
func (e *Engine) execute(drawFn DrawFunc) (*Data, error) {
	if HungTestExceeded(e.startTime) {
		e.health.reporter.FailHealthCheck("test has been running for too long", HealthHungTest)
	}
	data := NewData(drawFn, e.cap, e.nextTestCounter(), e.events)
	e.runTestFunction(data)
	data.Freeze()
	e.afterExecute(data)
	return data, e.checkBudgets()
}

func (e *Engine) afterExecute(data *Data) {
	e.callCount++
	if data.Status() == Valid {
		e.validExamples++
	}

	// Reset before inserting, so a reset never wipes the example that
	// triggered it out of the fresh tree.
	if e.callCount%CacheResetFrequency == 0 && len(e.interestingExamples) == 0 {
		e.trie.Reset()
		e.events.Purge()
	}
	e.trie.Insert(data)
	e.health.Observe(data)

	if data.Status() == Interesting {
		e.recordInteresting(data)
	} else {
		e.selector.Add(data)
	}
}

// recordInteresting keeps the best (smaller-is-better) TestData per
// distinct origin, persisting new champions to the primary database key
// and demoting superseded buffers to the secondary key. Superseding a
// stored example with a strictly smaller one always advances shrinks,
// even though no shrinker was involved — the source's intended accounting
// (design note, open questions).
func (e *Engine) recordInteresting(data *Data) {
	origin := data.InterestingOrigin()
	existing, ok := e.interestingExamples[origin]
	changed := false
	if !ok {
		changed = true
	} else if sortKeyLess(data.Buffer(), existing.Buffer()) {
		e.shrinks++
		e.downgradeBuffer(existing.Buffer())
		changed = true
	}
	if changed {
		e.saveBuffer(data.Buffer())
		e.interestingExamples[origin] = data
		delete(e.shrunkExamples, origin)
	}
}

func (e *Engine) saveBuffer(buf []byte) {
	if e.settings.Database == nil || e.databaseKey == "" {
		return
	}
	primary, _, _ := DerivedKeys(e.databaseKey)
	_ = e.settings.Database.Save(primary, buf)
}

// downgradeBuffer demotes a no-longer-minimal interesting buffer from the
// primary to the secondary corpus.
func (e *Engine) downgradeBuffer(buf []byte) {
	if e.settings.Database == nil || e.databaseKey == "" {
		return
	}
	primary, secondary, _ := DerivedKeys(e.databaseKey)
	_ = e.settings.Database.Move(primary, secondary, buf)
}

func (e *Engine) checkBudgets() error {
	if e.settings.Timeout > 0 && time.Since(e.startTime) > e.settings.Timeout {
		if e.settings.Verbosity > 0 {
			log.Printf("conjecture: the timeout setting is deprecated; consider lowering MaxExamples instead (%d valid examples ran)", e.validExamples)
		}
		return newExit(ExitTimeout)
	}
	if e.shrinks >= MaxShrinks {
		return newExit(ExitMaxShrinks)
	}
	if len(e.interestingExamples) == 0 {
		if e.validExamples >= e.settings.MaxExamples {
			return newExit(ExitMaxExamples)
		}
		if e.callCount >= e.settings.maxIterations() {
			return newExit(ExitMaxIterations)
		}
	}
	if e.trie.RootDead() {
		return newExit(ExitFinished)
	}
	return nil
}

// Run sequences reuse-from-corpus, generation/mutation, and shrinking, and
// returns the final ExitReason. Exactly one ExitReason is ever recorded per
// run.
func (e *Engine) Run() ExitReason {
	e.startTime = time.Now()

	if e.settings.Phases[PhaseReuse] {
		if err := e.reuseExistingExamples(); err != nil {
			return e.finishWith(err)
		}
	}
	if e.settings.Phases[PhaseGenerate] {
		if err := e.generateNewExamples(); err != nil {
			return e.finishWith(err)
		}
	}
	if e.settings.Phases[PhaseShrink] {
		if err := e.shrinkInterestingExamples(); err != nil {
			return e.finishWith(err)
		}
	}

	e.exitReason = ExitFinished
	return ExitFinished
}

func (e *Engine) finishWith(err error) ExitReason {
	if reason, ok := asExit(err); ok {
		e.exitReason = reason
		return reason
	}
	if _, ok := err.(*FlakyError); ok {
		e.exitReason = ExitFlaky
		return ExitFlaky
	}
	e.exitReason = ExitFinished
	e.runErr = err
	return ExitFinished
}

// reuseExistingExamples replays the database's primary, secondary, and
// covering corpora in size order, down-sampled to the reuse budget.
func (e *Engine) reuseExistingExamples() error {
	if e.settings.Database == nil || e.databaseKey == "" {
		return nil
	}
	primary, secondary, covering := DerivedKeys(e.databaseKey)

	var corpus [][]byte
	for _, key := range []string{primary, secondary, covering} {
		bufs, err := e.settings.Database.Fetch(key)
		if err != nil {
			continue
		}
		corpus = append(corpus, bufs...)
	}
	slices.SortFunc(corpus, sortKeyCmp)

	if budget := e.settings.reuseBudget(); budget < len(corpus) {
		corpus = corpus[:budget]
	}

	for _, buf := range corpus {
		if !e.trie.Prescreen(buf) {
			continue
		}
		data := e.trie.CachedTestFunction(buf, e.runTestFunction, e.cap, e.nextTestCounter(), e.events)
		e.afterExecute(data)
		if data.Status() != Interesting {
			// The corpus entry no longer reproduces anything; clear it out.
			_ = e.settings.Database.Delete(primary, buf)
			_ = e.settings.Database.Delete(secondary, buf)
		}
		if err := e.checkBudgets(); err != nil {
			return err
		}
	}
	return nil
}

// generateNewExamples runs the generation/mutation loop (§4.4.1) until an
// interesting example is found or a budget is exhausted.
func (e *Engine) generateNewExamples() error {
	zeroBuf := make([]byte, e.settings.BufferSize)
	base := e.trie.CachedTestFunction(zeroBuf, e.runTestFunction, e.cap, e.nextTestCounter(), e.events)
	e.afterExecute(base)
	if err := e.checkBudgets(); err != nil {
		return err
	}

	if base.Status() == Overrun || (base.Status() == Valid && base.Index() > e.settings.BufferSize/2) {
		e.health.reporter.FailHealthCheck("the base (all-zero) example is too large", HealthLargeBaseExample)
	}

	if e.isSingletonLanguage(base) {
		return newExit(ExitFinished)
	}

	e.health.Activate()

	count := 0
	for len(e.interestingExamples) == 0 && (count < 10 || e.health.Active()) {
		prefix, perr := e.trie.GenerateNovelPrefix(e.rnd)
		if perr != nil {
			return newExit(ExitFinished)
		}
		if _, err := e.execute(zeroBound(prefixThenUniformDraw(prefix, e.rnd), e.cap)); err != nil {
			return err
		}
		count++
	}

	if len(e.interestingExamples) > 0 {
		return nil
	}
	return e.mutationPhase()
}

func (e *Engine) isSingletonLanguage(data *Data) bool {
	for i := 0; i < e.cap; i++ {
		if !data.ForcedIndices()[i] {
			return false
		}
	}
	return true
}

// mutationPhase repeats: serve the zero-bound queue first, else mutate
// from a freshly selected origin, replacing the mutator whenever the
// result regresses or ten mutations pass without improvement. The pure
// generation phase has run by the time this is entered, so the selector
// holds at least one example.
func (e *Engine) mutationPhase() error {
	mutator, err := e.freshMutator()
	if err != nil {
		return err
	}

	mutations := 0
	for len(e.interestingExamples) == 0 {
		if len(e.zeroBoundQueue) > 0 {
			zd := e.popZeroBoundQueue()
			shuffled := zeroThenShuffle(zd, e.rnd)
			d, err := e.execute(zeroBound(bufferReplayDraw(shuffled), e.cap))
			if err != nil {
				return err
			}
			if d.HitZeroBound() {
				e.zeroBoundQueue = append(e.zeroBoundQueue, d)
			}
			mutations++
			continue
		}

		origin := e.selector.Select()
		if err := mutator.SetOrigin(origin); err != nil {
			return newExit(ExitFinished)
		}
		d, err := e.execute(mutator.DrawFunc(e.cap))
		if err != nil {
			return err
		}

		switch {
		case d.Status() > origin.Status():
			mutations = 0
		case d.Status() < origin.Status() || mutations >= 10:
			if mutator, err = e.freshMutator(); err != nil {
				return err
			}
			mutations = 0
		}

		if d.HitZeroBound() {
			e.zeroBoundQueue = append(e.zeroBoundQueue, d)
		}
		mutations++
	}
	return nil
}

// freshMutator builds a new mutator, converting a dead-root failure to
// synthesize a novel prefix into the finished exit.
func (e *Engine) freshMutator() (*Mutator, error) {
	m, err := NewMutator(e.trie, e.rnd)
	if err != nil {
		return nil, newExit(ExitFinished)
	}
	return m, nil
}

func (e *Engine) popZeroBoundQueue() *Data {
	d := e.zeroBoundQueue[len(e.zeroBoundQueue)-1]
	e.zeroBoundQueue = e.zeroBoundQueue[:len(e.zeroBoundQueue)-1]
	return d
}

func zeroThenShuffle(data *Data, rnd *rand.Rand) []byte {
	buf := append([]byte(nil), data.Buffer()...)
	for idx := range data.ForcedIndices() {
		if idx < len(buf) {
			buf[idx] = 0
		}
	}
	rnd.Shuffle(len(buf), func(i, j int) { buf[i], buf[j] = buf[j], buf[i] })
	return buf
}

func prefixThenUniformDraw(prefix []byte, rnd *rand.Rand) DrawFunc {
	return func(data *Data, n int) []byte {
		out := make([]byte, n)
		start := data.Index()
		i := 0
		for ; i < n && start+i < len(prefix); i++ {
			out[i] = prefix[start+i]
		}
		if i < n {
			rnd.Read(out[i:])
		}
		return out
	}
}

// shrinkInterestingExamples first replays every stored interesting buffer
// to confirm it still fails, then minimizes origin by origin — always the
// smallest unshrunk target next, by (sort_key(buffer),
// sort_key(repr(origin))) — until every origin is recorded as shrunk.
func (e *Engine) shrinkInterestingExamples() error {
	if len(e.interestingExamples) == 0 {
		return nil
	}

	confirm := make([]InterestingOrigin, 0, len(e.interestingExamples))
	for o := range e.interestingExamples {
		confirm = append(confirm, o)
	}
	slices.SortFunc(confirm, e.originCmp)
	for _, origin := range confirm {
		target := e.interestingExamples[origin]
		replayed, ok := e.ReplayAndConfirm(target.Buffer(), TargetPredicate(origin))
		if !ok {
			return &FlakyError{Origin: origin}
		}
		e.interestingExamples[origin] = replayed
		if err := e.checkBudgets(); err != nil {
			return err
		}
	}

	if err := e.clearSecondaryKey(); err != nil {
		return err
	}

	for {
		var origins []InterestingOrigin
		for o := range e.interestingExamples {
			if !e.shrunkExamples[o] {
				origins = append(origins, o)
			}
		}
		if len(origins) == 0 {
			return nil
		}
		slices.SortFunc(origins, e.originCmp)

		origin := origins[0]
		if e.shrinker != nil {
			if shrunk := e.shrinker.Shrink(e.interestingExamples[origin], TargetPredicate(origin)); shrunk != nil {
				e.interestingExamples[origin] = shrunk
			}
		}
		e.shrunkExamples[origin] = true

		if err := e.checkBudgets(); err != nil {
			return err
		}
	}
}

func (e *Engine) originCmp(a, b InterestingOrigin) int {
	da, db := e.interestingExamples[a], e.interestingExamples[b]
	if c := sortKeyCmp(da.Buffer(), db.Buffer()); c != 0 {
		return c
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// clearSecondaryKey replays any secondary-corpus buffer no larger than the
// largest known interesting example, on the chance it works as a shrink,
// and clears the secondary corpus as it goes: each entry is either
// promoted back to primary by recordInteresting or strictly worse than
// what is already held.
func (e *Engine) clearSecondaryKey() error {
	if e.settings.Database == nil || e.databaseKey == "" {
		return nil
	}
	_, secondary, _ := DerivedKeys(e.databaseKey)
	corpus, err := e.settings.Database.Fetch(secondary)
	if err != nil {
		return nil
	}
	slices.SortFunc(corpus, sortKeyCmp)

	for _, c := range corpus {
		var largest []byte
		for _, d := range e.interestingExamples {
			if largest == nil || sortKeyLess(largest, d.Buffer()) {
				largest = d.Buffer()
			}
		}
		if sortKeyCmp(c, largest) > 0 {
			break
		}
		if e.trie.Prescreen(c) {
			data := e.trie.CachedTestFunction(c, e.runTestFunction, e.cap, e.nextTestCounter(), e.events)
			e.afterExecute(data)
		}
		_ = e.settings.Database.Delete(secondary, c)
		if err := e.checkBudgets(); err != nil {
			return err
		}
	}
	return nil
}
