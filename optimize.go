package rfpose

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"math"
	"sort"
)

//BinaryTest is a randomized two-pixel test. A patch passes to the A side when
//the intensity at (X1, Y1) minus the intensity at (X2, Y2) does not exceed
//Threshold, otherwise it passes to the B side.
type BinaryTest struct {
	X1, Y1, X2, Y2 int
	Threshold      int
}

//valueIndex keeps the intensity difference of one patch together with its
//position in the node data.
type valueIndex struct {
	value int
	index int
}

//generateTest draws the probe coordinates of a new binary test uniformly from
//the patch dimensions. The threshold is left for optimizeTest to fill in.
func (tree *PoseTree) generateTest(width, height int) BinaryTest {
	return BinaryTest{
		X1: tree.rng.Intn(width),
		Y1: tree.rng.Intn(height),
		X2: tree.rng.Intn(width),
		Y2: tree.rng.Intn(height),
	}
}

//evaluateTest applies the probe part of a binary test to every patch of the
//node data and returns the intensity differences sorted in ascending order.
func evaluateTest(data TrainingSet, test BinaryTest) []valueIndex {
	vals := make([]valueIndex, len(data))
	for p, patch := range data {
		vals[p] = valueIndex{
			value: int(patch.At(test.X1, test.Y1)) - int(patch.At(test.X2, test.Y2)),
			index: p,
		}
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i].value < vals[j].value })
	return vals
}

//splitAt distributes the node data into the A part with intensity differences
//up to the threshold and the B part with the rest.
func splitAt(data TrainingSet, vals []valueIndex, threshold int) (partA, partB TrainingSet) {
	cut := sort.Search(len(vals), func(i int) bool { return vals[i].value > threshold })

	partA = make(TrainingSet, 0, cut)
	for _, v := range vals[:cut] {
		partA = append(partA, data[v.index])
	}
	partB = make(TrainingSet, 0, len(vals)-cut)
	for _, v := range vals[cut:] {
		partB = append(partB, data[v.index])
	}
	return partA, partB
}

//optimizeTest searches for the binary test with the best information gain. It
//draws budget random probe pairs, for every pair draws ThresholdIters
//thresholds between the extreme intensity differences and keeps the candidate
//that separates the pose labels best. ok is false when no candidate produces
//two non-empty parts with a comparable gain.
func (tree *PoseTree) optimizeTest(data TrainingSet, budget int) (best BinaryTest, bestA, bestB TrainingSet, ok bool) {
	width, height := data[0].Width(), data[0].Height()
	bestScore := math.Inf(-1)

	for it := 0; it < budget; it++ {
		test := tree.generateTest(width, height)
		vals := evaluateTest(data, test)

		vmin := vals[0].value
		vmax := vals[len(vals)-1].value
		if vmax-vmin <= 0 {
			continue
		}

		for tr := 0; tr < tree.ThresholdIters; tr++ {
			test.Threshold = vmin + tree.rng.Intn(vmax-vmin)
			partA, partB := splitAt(data, vals, test.Threshold)
			if len(partA) == 0 || len(partB) == 0 {
				continue
			}

			score := informationGain(data, partA, partB)
			if score > bestScore {
				ok = true
				bestScore = score
				best = test
				bestA = partA
				bestB = partB
			}
		}
	}

	return best, bestA, bestB, ok
}

//poseMatrix copies the pose labels of the node data into an n×2 matrix with a
//pitch and a yaw column.
func poseMatrix(data TrainingSet) *mat.Dense {
	labels := mat.NewDense(len(data), 2, nil)
	for p, patch := range data {
		labels.Set(p, 0, patch.Pitch)
		labels.Set(p, 1, patch.Yaw)
	}
	return labels
}

//poseCovariance computes the covariance matrix of the pose labels normalized
//by the sample count. The dispersion of less than two samples is zero.
func poseCovariance(labels *mat.Dense) *mat.SymDense {
	cov := mat.NewSymDense(2, nil)
	h := Height(labels)
	if h < 2 {
		return cov
	}
	stat.CovarianceMatrix(cov, labels, nil)
	cov.ScaleSym(float64(h-1)/float64(h), cov)
	return cov
}

//poseStats returns the mean pose and the pose covariance of the node data. An
//empty node yields zero statistics.
func poseStats(data TrainingSet) ([]float64, *mat.SymDense) {
	if len(data) == 0 {
		return []float64{0, 0}, mat.NewSymDense(2, nil)
	}
	labels := poseMatrix(data)
	mean := []float64{
		stat.Mean(mat.Col(nil, 0, labels), nil),
		stat.Mean(mat.Col(nil, 1, labels), nil),
	}
	return mean, poseCovariance(labels)
}

//informationGain measures how much a split reduces the spread of the pose
//labels. It is the logarithm of the generalized pose variance of the parent
//minus the size-weighted logarithms of the generalized pose variances of both
//parts.
func informationGain(parent, partA, partB TrainingSet) float64 {
	wA := float64(len(partA)) / float64(len(parent))
	wB := float64(len(partB)) / float64(len(parent))

	detP := mat.Det(poseCovariance(poseMatrix(parent)))
	detA := mat.Det(poseCovariance(poseMatrix(partA)))
	detB := mat.Det(poseCovariance(poseMatrix(partB)))

	return math.Log(detP) - wB*math.Log(detB) - wA*math.Log(detA)
}
