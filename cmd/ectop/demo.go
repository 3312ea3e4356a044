package main

import (
	"github.com/ectop-dev/ectop/pkg/gateway"
)

// demoGateway builds an in-memory server so the interface can be
// explored without a live connection. The tree mirrors a small
// operational forecast setup: one healthy suite, one with a failure
// held back by a trigger.
func demoGateway() *gateway.Fake {
	f := gateway.NewFake()
	f.FullSnapshot = &gateway.Snapshot{
		ServerStatus:  "running",
		ServerVersion: "demo",
		Nodes: []gateway.NodeData{
			{
				Path: "forecast", Kind: "suite", State: "active",
				Children: []string{"ingest", "model", "publish"}, ChildrenKnown: true,
				Variables: []gateway.Variable{
					{Name: "QUEUE", Value: "operational"},
					{Name: "CYCLE", Value: "00"},
				},
				Limits: []gateway.Limit{{Name: "cpu", Max: 4, Consumed: 4}},
			},
			{
				Path: "forecast/ingest", Kind: "family", State: "complete",
				Children: []string{"fetch_obs", "decode"}, ChildrenKnown: true,
			},
			{Path: "forecast/ingest/fetch_obs", Kind: "task", State: "complete", ChildrenKnown: true},
			{Path: "forecast/ingest/decode", Kind: "task", State: "complete", ChildrenKnown: true},
			{
				Path: "forecast/model", Kind: "family", State: "active",
				Children: []string{"assimilate", "run"}, ChildrenKnown: true,
			},
			{Path: "forecast/model/assimilate", Kind: "task", State: "active", ChildrenKnown: true,
				InLimits: []string{"cpu"}},
			{
				Path: "forecast/model/run", Kind: "task", State: "queued", ChildrenKnown: true,
				Trigger:  "assimilate == complete and limit.cpu < 4",
				InLimits: []string{"cpu"},
			},
			{
				Path: "forecast/publish", Kind: "family", State: "queued", ChildrenKnown: true,
				Trigger: "../model == complete",
			},
			{
				Path: "archive", Kind: "suite", State: "suspended",
				Children: []string{"cleanup"}, ChildrenKnown: true,
			},
			{Path: "archive/cleanup", Kind: "task", State: "aborted", ChildrenKnown: true,
				Reason: "job exceeded wall-clock limit"},
		},
	}
	f.Artifacts["archive/cleanup/script"] = "#!/bin/sh\n# cleanup.ecf\nfind $ARCHIVE_DIR -mtime +30 -delete\n"
	f.Artifacts["archive/cleanup/jobout"] = "+ find /archive -mtime +30 -delete\nkilled: wall-clock limit\n"
	return f
}
