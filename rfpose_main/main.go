package main

import (
	"encoding/json"
	"flag"
	"github.com/0x0all/rf-pose"
	"github.com/sbinet/npyio"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
)

func decodeConfig(srcConfig string, out interface{}) {
	file, err := os.Open(srcConfig)
	rfpose.HandleError(err)
	defer func() { rfpose.HandleError(file.Close()) }()

	decoder := json.NewDecoder(file)
	rfpose.HandleError(decoder.Decode(out))
}

type TrainConfig struct {
	FileNamePatches string `json:"filename_patches"`
	FileNamePoses   string `json:"filename_poses"`
	FileNameModel   string `json:"filename_model"`
	FigureType      string `json:"figure_type"`
	FileNameFigure  string `json:"filename_figure"`
	MinSamples      int    `json:"min_samples"`
	MaxDepth        int    `json:"max_depth"`
	ThresholdIters  int    `json:"threshold_iters"`
	TestIters       int    `json:"test_iters"`
	Seed            int64  `json:"seed"`
}

func train(srcConfig string) {
	var trainConfig TrainConfig
	decodeConfig(srcConfig, &trainConfig)

	data, err := rfpose.LoadTrainingSet(trainConfig.FileNamePatches, trainConfig.FileNamePoses)
	rfpose.HandleError(err)

	tree, err := rfpose.NewTree(rfpose.Params{
		MinSamples:     trainConfig.MinSamples,
		MaxDepth:       trainConfig.MaxDepth,
		ThresholdIters: trainConfig.ThresholdIters,
		TestIters:      trainConfig.TestIters,
		Seed:           trainConfig.Seed,
	})
	rfpose.HandleError(err)
	rfpose.HandleError(tree.GrowTree(data))

	if trainConfig.FileNameFigure != "" {
		tree.RenderTree(trainConfig.FigureType, trainConfig.FileNameFigure)
	}

	rfpose.HandleError(tree.Save(trainConfig.FileNameModel))
}

type GraphConfig struct {
	FileNameModel  string `json:"filename_model"`
	FigureType     string `json:"figure_type"`
	FileNameFigure string `json:"filename_figure"`
}

func graph(srcConfig string) {
	var graphConfig GraphConfig
	decodeConfig(srcConfig, &graphConfig)

	tree, err := rfpose.LoadTree(graphConfig.FileNameModel)
	rfpose.HandleError(err)
	tree.RenderTree(graphConfig.FigureType, graphConfig.FileNameFigure)
}

type LeavesConfig struct {
	FileNameModel     string `json:"filename_model"`
	FileNameLeafMeans string `json:"filename_leaf_means"`
}

func leaves(srcConfig string) {
	var leavesConfig LeavesConfig
	decodeConfig(srcConfig, &leavesConfig)

	tree, err := rfpose.LoadTree(leavesConfig.FileNameModel)
	rfpose.HandleError(err)

	dst, err := os.Create(leavesConfig.FileNameLeafMeans)
	rfpose.HandleError(err)
	rfpose.HandleError(npyio.Write(dst, tree.LeafMeans()))
}

func main() {
	runMode := flag.String("mode", "train", "you can select either 'train', 'graph' or 'leaves' modes")
	config := flag.String("config", "rf_pose_config.json", "a config file for the run of the program")
	memprofile := flag.String("memprofile", "", "write memory profile to `file`")

	flag.Parse()

	map[string]func(string){
		"train":  train,
		"graph":  graph,
		"leaves": leaves,
	}[*runMode](*config)

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		rfpose.HandleError(err)
		defer func() { rfpose.HandleError(f.Close()) }()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal("could not write memory profile: ", err)
		}
	}
}
