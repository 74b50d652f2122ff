package rfpose

import (
	"encoding/json"
	"fmt"
	"github.com/goccy/go-graphviz"
	"gonum.org/v1/gonum/mat"
	"os"
)

//LeafMeans returns the mean poses of the used leaves of the grown tree as an
//L×2 matrix with a pitch and a yaw column.
func (tree *PoseTree) LeafMeans() *mat.Dense {
	means := mat.NewDense(tree.NumLeaves, 2, nil)
	for ind := 0; ind < tree.NumLeaves; ind++ {
		means.SetRow(ind, tree.Leaves[ind].Mean)
	}
	return means
}

func (tree *PoseTree) Save(fileName string) error {
	dest, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	defer func() { HandleError(dest.Close()) }()

	modelByteRepr, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal the pose tree: %w", err)
	}
	if _, err = dest.Write(modelByteRepr); err != nil {
		return fmt.Errorf("write the pose tree: %w", err)
	}
	return nil
}

func LoadTree(fileName string) (*PoseTree, error) {
	source, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer func() { HandleError(source.Close()) }()

	tree := &PoseTree{}
	decoder := json.NewDecoder(source)
	if err = decoder.Decode(tree); err != nil {
		return nil, fmt.Errorf("decode the pose tree: %w", err)
	}
	if tree.MaxDepth < 0 || tree.MaxDepth > maxTreeDepth {
		return nil, fmt.Errorf("the model file holds an out of range depth limit %d", tree.MaxDepth)
	}
	if expected := 1<<(tree.MaxDepth+1) - 1; len(tree.Rows) != expected {
		return nil, fmt.Errorf("the model file holds a tree table of %d rows, want %d", len(tree.Rows), expected)
	}
	return tree, nil
}

//RenderTree draws the grown tree as a graph and renders it into a figure file.
//The figure type is one of png, svg or jpg.
func (tree *PoseTree) RenderTree(figureType, fileName string) {
	graphvizType := map[string]graphviz.Format{
		"png": graphviz.PNG,
		"svg": graphviz.SVG,
		"jpg": graphviz.JPG,
	}[figureType]

	graphViz, graph := tree.DrawGraph()
	HandleError(graphViz.RenderFilename(graph, graphvizType, fileName))
}
