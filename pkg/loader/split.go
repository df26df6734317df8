package loader

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

var (
	// ErrEmptyPartition is returned when a split or fold would leave a side without rows.
	ErrEmptyPartition = errors.New("empty partition")
	// ErrMissingClass is returned when a partition lacks a required class.
	ErrMissingClass = errors.New("missing class")
)

// Split holds disjoint row indices into the source frame.
type Split struct {
	Train []int
	Test  []int
}

// TestCount is the number of test rows for n rows at the given ratio, rounded up.
func TestCount(n int, testSize float64) int {
	// Guard against products like 10*0.3 landing just above an integer.
	return int(math.Ceil(float64(n)*testSize - 1e-9))
}

// TrainTestSplit permutes n row indices with a seeded source and assigns the first
// TestCount of them to the test side.
func TrainTestSplit(n int, testSize float64, seed int64) (Split, error) {
	nTest, err := testCount(n, testSize)
	if err != nil {
		return Split{}, err
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return Split{Train: perm[nTest:], Test: perm[:nTest]}, nil
}

// StratifiedSplit behaves like TrainTestSplit but preserves the label proportions on both
// sides. Per-class test counts are allocated by largest remainder so the total matches
// TestCount.
func StratifiedSplit[L comparable](labels []L, testSize float64, seed int64) (Split, error) {
	n := len(labels)
	nTest, err := testCount(n, testSize)
	if err != nil {
		return Split{}, err
	}
	classes, byClass := groupByLabel(labels)

	type share struct {
		class int
		take  int
		rem   float64
	}
	shares := make([]share, len(classes))
	assigned := 0
	for c := range classes {
		exact := float64(len(byClass[c])) * float64(nTest) / float64(n)
		shares[c] = share{class: c, take: int(exact), rem: exact - math.Floor(exact)}
		assigned += shares[c].take
	}
	order := make([]share, len(shares))
	copy(order, shares)
	sort.SliceStable(order, func(a, b int) bool { return order[a].rem > order[b].rem })
	for i := 0; assigned < nTest; i++ {
		shares[order[i%len(order)].class].take++
		assigned++
	}

	rng := rand.New(rand.NewSource(seed))
	var s Split
	for c := range classes {
		idx := byClass[c]
		perm := rng.Perm(len(idx))
		for k, p := range perm {
			if k < shares[c].take {
				s.Test = append(s.Test, idx[p])
			} else {
				s.Train = append(s.Train, idx[p])
			}
		}
	}
	rng.Shuffle(len(s.Train), func(i, j int) { s.Train[i], s.Train[j] = s.Train[j], s.Train[i] })
	rng.Shuffle(len(s.Test), func(i, j int) { s.Test[i], s.Test[j] = s.Test[j], s.Test[i] })
	return s, nil
}

// RequireClasses checks that every class occurs at least once among labels[idx].
func RequireClasses(labels []string, idx []int, classes []string) error {
	seen := make(map[string]bool, len(classes))
	for _, i := range idx {
		seen[labels[i]] = true
	}
	var missing []string
	for _, c := range classes {
		if !seen[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %q", ErrMissingClass, missing)
	}
	return nil
}

// StratifiedKFold partitions row indices into k folds, dealing each class's rows in order
// round-robin so every fold carries roughly the same class mix. No shuffling is applied.
func StratifiedKFold[L comparable](labels []L, k int) ([]Split, error) {
	n := len(labels)
	if k < 2 {
		return nil, fmt.Errorf("need at least 2 folds, got %d", k)
	}
	if n < k {
		return nil, fmt.Errorf("%w: %d rows cannot fill %d folds", ErrEmptyPartition, n, k)
	}
	_, byClass := groupByLabel(labels)
	foldOf := make([]int, n)
	next := 0
	for _, idx := range byClass {
		for _, i := range idx {
			foldOf[i] = next % k
			next++
		}
	}
	folds := make([]Split, k)
	for i := range n {
		for f := range k {
			if foldOf[i] == f {
				folds[f].Test = append(folds[f].Test, i)
			} else {
				folds[f].Train = append(folds[f].Train, i)
			}
		}
	}
	return folds, nil
}

func testCount(n int, testSize float64) (int, error) {
	if testSize <= 0 || testSize >= 1 {
		return 0, fmt.Errorf("test size must be in (0, 1), got %v", testSize)
	}
	nTest := TestCount(n, testSize)
	if nTest == 0 || nTest >= n {
		return 0, fmt.Errorf("%w: %d rows at test size %v gives %d test rows", ErrEmptyPartition, n, testSize, nTest)
	}
	return nTest, nil
}

// groupByLabel returns the distinct labels in first-seen order and their row indices.
func groupByLabel[L comparable](labels []L) ([]L, [][]int) {
	pos := map[L]int{}
	var classes []L
	var byClass [][]int
	for i, l := range labels {
		c, ok := pos[l]
		if !ok {
			c = len(classes)
			pos[l] = c
			classes = append(classes, l)
			byClass = append(byClass, nil)
		}
		byClass[c] = append(byClass[c], i)
	}
	return classes, byClass
}
