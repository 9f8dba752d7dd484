// Copyright The NRI Plugins Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// memplan plans the memory of graphs described in YAML files and prints
// a report of the resulting plans.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cfgapi "github.com/streamgraph/memplan/pkg/apis/config/v1alpha1/memplan"
	"github.com/streamgraph/memplan/pkg/graphspec"
	logger "github.com/streamgraph/memplan/pkg/log"
	"github.com/streamgraph/memplan/pkg/log/klogcontrol"
	"github.com/streamgraph/memplan/pkg/memplan"
	"github.com/streamgraph/memplan/pkg/metrics"
)

var (
	log = logger.Get("memplan-cli")
)

func main() {
	var (
		configFlag  = flag.String("config", "", "planner configuration file")
		outputFlag  = flag.String("output", "", "write the report to this file instead of stdout")
		verifyFlag  = flag.Bool("verify", false, "verify plans before reporting them")
		blocksFlag  = flag.Bool("blocks", false, "include the block forest in the report")
		dumpFlag    = flag.Bool("dump", false, "log plans (enable debugging for details)")
		metricsFlag = flag.Bool("metrics", false, "print plan totals as prometheus metrics")
		debugFlag   = flag.String("debug", "", "enable debugging for the given comma-separated sources")
	)

	klogcontrol.Get().Bind(flag.CommandLine, "klog.")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [options] graph.yaml [graph.yaml...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := &cfgapi.Config{}
	if *configFlag != "" {
		c, err := cfgapi.Load(*configFlag)
		if err != nil {
			fatal("%v", err)
		}
		cfg = c
	}
	if *debugFlag != "" {
		cfg.Log.Debug = append(cfg.Log.Debug, "on:"+*debugFlag)
	}
	if err := logger.Configure(&cfg.Log); err != nil {
		fatal("failed to configure logging: %v", err)
	}
	logger.SetSlogLogger("")

	planner, err := memplan.NewPlanner(
		memplan.WithConfig(cfg),
		memplan.WithVerification(cfg.Verify || *verifyFlag),
	)
	if err != nil {
		fatal("failed to create planner: %v", err)
	}

	graphs := make([]*memplan.Graph, 0, flag.NArg())
	for _, path := range flag.Args() {
		spec, err := graphspec.Load(path)
		if err != nil {
			fatal("%v", err)
		}
		g, err := spec.Graph()
		if err != nil {
			fatal("%v", err)
		}
		graphs = append(graphs, g)
	}

	plans, err := planner.PlanPartitions(context.Background(), graphs)
	if err != nil {
		fatal("planning failed: %v", err)
	}

	collector := memplan.NewCollector()
	for _, plan := range plans {
		if *dumpFlag {
			plan.DumpConfig()
			plan.DumpPlan()
		}
		collector.Update(plan)
	}

	data, err := renderReports(plans, *blocksFlag)
	if err != nil {
		fatal("%v", err)
	}
	if err := writeReport(*outputFlag, data); err != nil {
		fatal("%v", err)
	}

	if *metricsFlag {
		if err := writeMetrics(collector); err != nil {
			fatal("%v", err)
		}
	}
}

// renderReports renders the reports of all plans as a YAML stream.
func renderReports(plans []*memplan.Plan, withBlocks bool) ([]byte, error) {
	buf := &bytes.Buffer{}
	for i, plan := range plans {
		data, err := graphspec.NewReport(plan, withBlocks).Marshal()
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// writeReport writes the report to stdout, or replaces the given file with
// it. The file is either fully written or left as it was.
func writeReport(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	tmp := f.Name()

	err = f.Chmod(0o644)
	if err == nil {
		_, err = f.Write(data)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write report %q: %w", path, err)
	}

	return nil
}

func writeMetrics(collector *memplan.Collector) error {
	reg := metrics.NewRegistry()
	if err := reg.Register("plans", collector, metrics.WithGroup("memplan"),
		metrics.WithCollectorOptions(metrics.WithoutSubsystem())); err != nil {
		return err
	}

	g, err := reg.NewGatherer(metrics.WithNamespace("memplan"))
	if err != nil {
		return fmt.Errorf("failed to create metrics gatherer: %w", err)
	}

	return g.WriteText(os.Stdout)
}

func fatal(format string, args ...interface{}) {
	log.Error(format, args...)
	fmt.Fprintf(os.Stderr, "memplan: "+strings.TrimSuffix(format, "\n")+"\n", args...)
	os.Exit(1)
}
