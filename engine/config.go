// Copyright 2025 Weft ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"github.com/weft-ml/weft/internal/engine"
)

// Config is the sealed interface all operator configurations satisfy. Each
// configuration reduces to a deterministic Fingerprint covering every
// attribute that distinguishes one compiled computation from another.
type Config = engine.Config

// ConvConfig describes a 2D convolution, optionally with bias and a chain
// of fused post-ops.
type ConvConfig = engine.ConvConfig

// ConvBackDataConfig describes the gradient of a convolution with respect
// to its source.
type ConvBackDataConfig = engine.ConvBackDataConfig

// ConvBackWeightsConfig describes the gradient of a convolution with
// respect to its weights, optionally with a bias gradient.
type ConvBackWeightsConfig = engine.ConvBackWeightsConfig

// PoolConfig describes 2D max or average pooling. Workspace requests an
// argmax side output for a later backward pass.
type PoolConfig = engine.PoolConfig

// PoolBackConfig describes the gradient of 2D pooling.
type PoolBackConfig = engine.PoolBackConfig

// BatchNormConfig describes inference batch normalization with precomputed
// statistics.
type BatchNormConfig = engine.BatchNormConfig

// EltwiseConfig describes one elementwise function application.
type EltwiseConfig = engine.EltwiseConfig

// InnerProductConfig describes a fully connected layer.
type InnerProductConfig = engine.InnerProductConfig

// SumConfig describes a coefficient-weighted elementwise sum.
type SumConfig = engine.SumConfig

// ConcatConfig describes concatenation along one axis.
type ConcatConfig = engine.ConcatConfig

// SoftmaxConfig describes softmax along one axis; a negative axis counts
// from the end.
type SoftmaxConfig = engine.SoftmaxConfig

// ReorderConfig describes a conversion between two forms of one logical
// shape: layout permutation, channel re-blocking, element type change, or
// any combination.
type ReorderConfig = engine.ReorderConfig

// PoolAlgo selects the pooling reduction.
type PoolAlgo = engine.PoolAlgo

// Pooling algorithms.
const (
	MaxPool PoolAlgo = engine.MaxPool
	AvgPool PoolAlgo = engine.AvgPool
)

// EltwiseAlgo selects the elementwise function, both for the standalone
// eltwise operator and for activation post-ops.
type EltwiseAlgo = engine.EltwiseAlgo

// Elementwise algorithms.
const (
	ReLU    EltwiseAlgo = engine.ReLU
	Tanh    EltwiseAlgo = engine.Tanh
	Sigmoid EltwiseAlgo = engine.Sigmoid
	Linear  EltwiseAlgo = engine.Linear
)

// PostOpKind tags one entry of an operator's post-op chain.
type PostOpKind = engine.PostOpKind

// Post-op kinds.
const (
	PostEltwise PostOpKind = engine.PostEltwise
	PostSum     PostOpKind = engine.PostSum
)

// PostOp is one pass appended to an operator's output stage. Post-ops run
// in list order after bias.
type PostOp = engine.PostOp
