package rfpose

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestEvaluateTestSortsDifferences(t *testing.T) {
	probes := [4]uint8{9, 3, 200, 3}
	stack := buildStack(t, 4, 2, 2, func(i, x, y int) uint8 {
		if x == 1 && y == 0 {
			return probes[i]
		}
		return 10
	})
	data := buildTrainingSet(t, stack, func(i int) (float64, float64) {
		return float64(i), 0
	})

	test := BinaryTest{X1: 1, Y1: 0, X2: 0, Y2: 1}
	vals := evaluateTest(data, test)

	// differences are 9-10, 3-10, 200-10 and 3-10
	if len(vals) != 4 {
		t.Fatalf("expected 4 differences, got %d", len(vals))
	}
	if vals[0].value != -7 || vals[1].value != -7 || vals[2].value != -1 || vals[3].value != 190 {
		t.Fatalf("unexpected sorted differences: %v", vals)
	}
	if vals[2].index != 0 || vals[3].index != 2 {
		t.Fatalf("unexpected difference origins: %v", vals)
	}
	if !((vals[0].index == 1 && vals[1].index == 3) || (vals[0].index == 3 && vals[1].index == 1)) {
		t.Fatalf("unexpected origins of the equal differences: %v", vals)
	}

	second := evaluateTest(data, test)
	for p := range second {
		if second[p].value != vals[p].value {
			t.Fatalf("repeated evaluation changed the differences: %v and %v", vals, second)
		}
	}
}

func TestSplitAtHonorsThresholdBound(t *testing.T) {
	probes := [4]uint8{9, 3, 200, 3}
	stack := buildStack(t, 4, 2, 2, func(i, x, y int) uint8 {
		if x == 1 && y == 0 {
			return probes[i]
		}
		return 10
	})
	data := buildTrainingSet(t, stack, func(i int) (float64, float64) {
		return float64(i), 0
	})

	test := BinaryTest{X1: 1, Y1: 0, X2: 0, Y2: 1}
	vals := evaluateTest(data, test)
	diffOf := func(p Patch) int {
		return int(p.At(test.X1, test.Y1)) - int(p.At(test.X2, test.Y2))
	}

	cases := []struct{ threshold, sizeA, sizeB int }{
		{-8, 0, 4},
		{-7, 2, 2},
		{-1, 3, 1},
		{190, 4, 0},
	}
	for _, tc := range cases {
		partA, partB := splitAt(data, vals, tc.threshold)
		if len(partA) != tc.sizeA || len(partB) != tc.sizeB {
			t.Fatalf("threshold %d: expected parts of %d and %d, got %d and %d",
				tc.threshold, tc.sizeA, tc.sizeB, len(partA), len(partB))
		}
		for _, p := range partA {
			if diffOf(p) > tc.threshold {
				t.Fatalf("threshold %d: the A part holds a difference %d", tc.threshold, diffOf(p))
			}
		}
		for _, p := range partB {
			if diffOf(p) <= tc.threshold {
				t.Fatalf("threshold %d: the B part holds a difference %d", tc.threshold, diffOf(p))
			}
		}
	}
}

func TestOptimizeTestSeparatesData(t *testing.T) {
	data := slopedTrainingSet(t, 12)
	tree, err := NewTree(Params{MinSamples: 1, MaxDepth: 3, Seed: 21})
	if err != nil {
		t.Fatalf("failed to build a tree: %v", err)
	}
	tree.rng = rand.New(rand.NewSource(21))

	test, partA, partB, ok := tree.optimizeTest(data, len(data))
	if !ok {
		t.Fatalf("expected a valid split on separable data")
	}
	if len(partA) == 0 || len(partB) == 0 {
		t.Fatalf("expected two non-empty parts, got %d and %d", len(partA), len(partB))
	}
	if len(partA)+len(partB) != len(data) {
		t.Fatalf("expected the parts to cover %d patches, got %d", len(data), len(partA)+len(partB))
	}

	if test.X1 < 0 || test.X1 >= 4 || test.X2 < 0 || test.X2 >= 4 ||
		test.Y1 < 0 || test.Y1 >= 4 || test.Y2 < 0 || test.Y2 >= 4 {
		t.Fatalf("the probe coordinates leave the patch: %+v", test)
	}

	for _, p := range partA {
		if int(p.At(test.X1, test.Y1))-int(p.At(test.X2, test.Y2)) > test.Threshold {
			t.Fatalf("the A part disagrees with the returned test %+v", test)
		}
	}
	for _, p := range partB {
		if int(p.At(test.X1, test.Y1))-int(p.At(test.X2, test.Y2)) <= test.Threshold {
			t.Fatalf("the B part disagrees with the returned test %+v", test)
		}
	}
}

func TestGenerateTestStaysWithinPatch(t *testing.T) {
	tree, err := NewTree(Params{MinSamples: 1, MaxDepth: 1, Seed: 3})
	if err != nil {
		t.Fatalf("failed to build a tree: %v", err)
	}
	tree.rng = rand.New(rand.NewSource(3))

	for it := 0; it < 200; it++ {
		test := tree.generateTest(5, 3)
		if test.X1 < 0 || test.X1 >= 5 || test.X2 < 0 || test.X2 >= 5 {
			t.Fatalf("a probe column leaves the patch: %+v", test)
		}
		if test.Y1 < 0 || test.Y1 >= 3 || test.Y2 < 0 || test.Y2 >= 3 {
			t.Fatalf("a probe row leaves the patch: %+v", test)
		}
		if test.Threshold != 0 {
			t.Fatalf("the generator must leave the threshold alone, got %d", test.Threshold)
		}
	}
}

func TestPoseCovarianceMatchesDirectComputation(t *testing.T) {
	labels := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 9})
	cov := poseCovariance(labels)

	// deviations from the mean (3, 5) are (-2, -3), (0, -1) and (2, 4)
	expected := [2][2]float64{
		{8.0 / 3.0, 14.0 / 3.0},
		{14.0 / 3.0, 26.0 / 3.0},
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if math.Abs(cov.At(i, j)-expected[i][j]) > 1e-12 {
				t.Fatalf("covariance (%d,%d) = %g, expected %g", i, j, cov.At(i, j), expected[i][j])
			}
		}
	}

	single := poseCovariance(mat.NewDense(1, 2, []float64{7, 8}))
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if single.At(i, j) != 0 {
				t.Fatalf("expected a zero covariance for one sample, got %g", single.At(i, j))
			}
		}
	}
}

// labelCovarianceDet recomputes the determinant of the count-normalized label
// covariance without gonum.
func labelCovarianceDet(data TrainingSet) float64 {
	n := float64(len(data))
	var meanP, meanY float64
	for _, p := range data {
		meanP += p.Pitch
		meanY += p.Yaw
	}
	meanP /= n
	meanY /= n

	var varP, varY, covPY float64
	for _, p := range data {
		dp, dy := p.Pitch-meanP, p.Yaw-meanY
		varP += dp * dp
		varY += dy * dy
		covPY += dp * dy
	}
	varP /= n
	varY /= n
	covPY /= n

	return varP*varY - covPY*covPY
}

func TestInformationGainMatchesDirectFormula(t *testing.T) {
	stack := buildStack(t, 7, 2, 2, func(i, x, y int) uint8 { return uint8(i) })
	poses := [7][2]float64{{0, 1}, {1, 3}, {2, 2}, {3, 7}, {4, 5}, {5, 4}, {6, 8}}
	data := buildTrainingSet(t, stack, func(i int) (float64, float64) {
		return poses[i][0], poses[i][1]
	})

	partA, partB := data[:4], data[4:]
	got := informationGain(data, partA, partB)

	want := math.Log(labelCovarianceDet(data)) -
		3.0/7.0*math.Log(labelCovarianceDet(partB)) -
		4.0/7.0*math.Log(labelCovarianceDet(partA))
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("information gain %g, expected %g", got, want)
	}
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("expected a finite gain, got %g", got)
	}
}
