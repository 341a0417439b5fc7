// Copyright 2024 stepflow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package agent defines the contract between the workflow engine and the
agents it drives.

# Overview

An agent is a named unit of work that receives a prompt (plus optional
positional arguments and the outputs of previous steps) and produces an
output. The engine never looks inside an agent; it only relies on the
Agent interface and a handful of optional capabilities discovered through
type assertion.

# Core Interfaces

	type Agent interface {
	    Name() string
	    Run(ctx context.Context, req *Request) (any, error)
	    RunStreaming(ctx context.Context, req *Request) (any, error)
	}

Optional capabilities:

  - UsageReporter: reports best-effort token usage.
  - Instructor: exposes static instructions (routed via "instructions:<step>").
  - ModelNamer: reports the model name written to run records.
  - Releaser: releases resources at the end of a run.

# Construction

Agents are described by a Definition (apiVersion/kind/metadata/spec, the
same shape as the YAML documents consumed by workflow/dsl) and built by a
Factory that maps spec.framework to a Constructor. The factory ships with
the "mock" framework registered; in dry-run mode every definition is built
as a MockAgent.

	factory := agent.NewFactory(logger, agent.WithDryRun(true))
	a, err := factory.Create(def)

FuncAgent adapts a plain Go function to the Agent interface and is the
usual way to plug inline logic into a workflow in tests and examples.
*/
package agent
