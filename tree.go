package rfpose

import (
	"errors"
	"fmt"
	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
	"log"
	"math/rand"
	"strings"
	"time"
)

//NodeRow is one row of the flat tree table. The tree is stored in an array with
//the children of row i located at rows 2*i+1 and 2*i+2. The columns are the
//leaf index (-1 for an interior node), the probe coordinates x1, y1, x2, y2 of
//the binary test, a reserved column and the intensity difference threshold.
type NodeRow [7]int

//LeafNode stores the pose statistics of the training patches that reached a
//leaf: the sample count, the mean pitch and yaw and the flattened 2×2 pose
//covariance matrix.
type LeafNode struct {
	Samples    int
	Mean       []float64
	Covariance []float64
}

//Params collect arguments required to construct a pose tree. A zero
//ThresholdIters stands for DefaultThresholdIters, a zero TestIters makes every
//node draw as many probe pairs as there are patches in the training set and a
//zero Seed seeds the tree from the wall clock.
type Params struct {
	MinSamples     int
	MaxDepth       int
	ThresholdIters int
	TestIters      int
	Seed           int64
}

//DefaultThresholdIters is the number of thresholds tried per probe pair.
const DefaultThresholdIters = 10

//maxTreeDepth keeps the flat tree table addressable.
const maxTreeDepth = 30

//PoseTree maps grayscale patches to pitch and yaw angles. It is a binary
//regression tree with randomized two-pixel tests in the interior nodes and
//pose statistics in the leaves.
type PoseTree struct {
	MinSamples     int
	MaxDepth       int
	ThresholdIters int
	TestIters      int

	Rows      []NodeRow
	Leaves    []LeafNode
	NumLeaves int

	seed  int64
	rng   *rand.Rand
	grown bool
}

//NewTree allocates an ungrown pose tree. The tree table holds a row for every
//possible node of a tree of depth MaxDepth and one leaf slot per possible leaf.
func NewTree(params Params) (*PoseTree, error) {
	if params.MinSamples < 1 {
		return nil, fmt.Errorf("min samples must be positive, got %d", params.MinSamples)
	}
	if params.MaxDepth < 0 || params.MaxDepth > maxTreeDepth {
		return nil, fmt.Errorf("max depth must lie in [0, %d], got %d", maxTreeDepth, params.MaxDepth)
	}
	if params.ThresholdIters < 0 {
		return nil, fmt.Errorf("threshold iterations must not be negative, got %d", params.ThresholdIters)
	}
	if params.TestIters < 0 {
		return nil, fmt.Errorf("test iterations must not be negative, got %d", params.TestIters)
	}

	thresholdIters := params.ThresholdIters
	if thresholdIters == 0 {
		thresholdIters = DefaultThresholdIters
	}

	return &PoseTree{
		MinSamples:     params.MinSamples,
		MaxDepth:       params.MaxDepth,
		ThresholdIters: thresholdIters,
		TestIters:      params.TestIters,
		Rows:           make([]NodeRow, 1<<(params.MaxDepth+1)-1),
		Leaves:         make([]LeafNode, 1<<params.MaxDepth),
		seed:           params.Seed,
	}, nil
}

//GrowTree fits the tree to the given training set. All patches must share the
//dimensions of the first one. A tree can be grown only once.
func (tree *PoseTree) GrowTree(data TrainingSet) error {
	if tree.grown || tree.NumLeaves > 0 {
		return errors.New("the pose tree is already grown")
	}
	if len(data) == 0 {
		return errors.New("the training set is empty")
	}
	if data[0].Width() < 1 || data[0].Height() < 1 {
		return errors.New("patches must have positive dimensions")
	}

	seed := tree.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	tree.rng = rand.New(rand.NewSource(seed))

	budget := tree.TestIters
	if budget == 0 {
		budget = len(data)
	}

	log.Printf("grow a pose tree on %d patches, depth limit %d\n", len(data), tree.MaxDepth)
	tree.grow(data, 0, 0, budget)
	tree.grown = true
	log.Printf("the tree has %d leaves\n", tree.NumLeaves)

	return nil
}

//grow recurrently splits the training data and fills the tree table. A node
//becomes a leaf when its data fits into MinSamples, when the depth limit is
//reached or when no candidate test separates its data.
func (tree *PoseTree) grow(data TrainingSet, node, depth, budget int) {
	if len(data) <= tree.MinSamples || depth >= tree.MaxDepth {
		tree.makeLeaf(data, node)
		return
	}

	test, partA, partB, ok := tree.optimizeTest(data, budget)
	if !ok {
		tree.makeLeaf(data, node)
		return
	}

	tree.Rows[node][0] = -1
	tree.Rows[node][1] = test.X1
	tree.Rows[node][2] = test.Y1
	tree.Rows[node][3] = test.X2
	tree.Rows[node][4] = test.Y2
	tree.Rows[node][6] = test.Threshold

	if len(partA) > tree.MinSamples {
		tree.grow(partA, 2*node+1, depth+1, budget)
	} else {
		tree.makeLeaf(partA, 2*node+1)
	}
	if len(partB) > tree.MinSamples {
		tree.grow(partB, 2*node+2, depth+1, budget)
	} else {
		tree.makeLeaf(partB, 2*node+2)
	}
}

//makeLeaf finalizes a node: it takes the next free leaf slot and stores there
//the sample count, the mean pose and the pose covariance of the node data.
func (tree *PoseTree) makeLeaf(data TrainingSet, node int) {
	if tree.NumLeaves >= len(tree.Leaves) {
		log.Panicf("no free leaf slots: %d are already used", len(tree.Leaves))
	}
	mean, cov := poseStats(data)
	tree.Rows[node][0] = tree.NumLeaves
	tree.Leaves[tree.NumLeaves] = LeafNode{
		Samples:    len(data),
		Mean:       mean,
		Covariance: []float64{cov.At(0, 0), cov.At(0, 1), cov.At(1, 0), cov.At(1, 1)},
	}
	tree.NumLeaves++
}

//Route passes a patch through the grown tree and returns the index of the leaf
//it reaches.
func (tree *PoseTree) Route(p Patch) int {
	ind := 0
	for tree.Rows[ind][0] == -1 {
		row := tree.Rows[ind]
		if int(p.At(row[1], row[2]))-int(p.At(row[3], row[4])) <= row[6] {
			ind = 2*ind + 1
		} else {
			ind = 2*ind + 2
		}
	}
	return tree.Rows[ind][0]
}

//GetNodeDescription returns the description of an interior node for tree rendering as a graph
func (tree *PoseTree) GetNodeDescription(ind int) string {
	row := tree.Rows[ind]
	var sb strings.Builder
	sb.WriteString(fmt.Sprintln("id: ", ind))
	sb.WriteString(fmt.Sprintf("I(%d,%d) - I(%d,%d) <= %d", row[1], row[2], row[3], row[4], row[6]))
	return sb.String()
}

//GetLeafDescription returns the description of a leaf node for tree rendering as a graph
func (tree *PoseTree) GetLeafDescription(ind int) string {
	leaf := tree.Leaves[tree.Rows[ind][0]]
	var sb strings.Builder
	sb.WriteString(fmt.Sprintln("leaf: ", tree.Rows[ind][0]))
	sb.WriteString(fmt.Sprintln("#", leaf.Samples))
	sb.WriteString(fmt.Sprintf("pitch: %6.2f\nyaw: %6.2f", leaf.Mean[0], leaf.Mean[1]))
	return sb.String()
}

func recurrentDraw(g *cgraph.Graph, tree *PoseTree, nodeNumber int, parentNode *cgraph.Node) {
	currentNode, err := g.CreateNode(fmt.Sprint(nodeNumber))
	HandleError(err)

	if parentNode != nil {
		g.CreateEdge("", parentNode, currentNode)
	}

	if tree.Rows[nodeNumber][0] == -1 {
		currentNode.Set("label", tree.GetNodeDescription(nodeNumber))
		recurrentDraw(g, tree, 2*nodeNumber+1, currentNode)
		recurrentDraw(g, tree, 2*nodeNumber+2, currentNode)
	} else {
		currentNode.Set("label", tree.GetLeafDescription(nodeNumber))
		currentNode.Set("shape", "box")
	}
}

func (tree *PoseTree) DrawGraph() (*graphviz.Graphviz, *cgraph.Graph) {
	graphViz := graphviz.New()
	graph, err := graphViz.Graph()
	HandleError(err)

	recurrentDraw(graph, tree, 0, nil)

	return graphViz, graph
}
