package jbolt

import (
	"go.uber.org/zap"

	"github.com/openeuler-mirror/bishengjdk-jbolt/internal/jbolt/hostiface"
)

// Collaborators bundles the external, host-runtime-supplied
// implementations JBolt depends on but does not implement itself: the
// compiler broker, the code-cache allocator, the code-cache sweeper, and
// the stack sampler. Built with the same With*-returns-self chaining as
// Config.
type Collaborators struct {
	Broker    hostiface.CompilerBroker
	Allocator hostiface.CodeCacheAllocator
	Sweeper   hostiface.CodeCacheSweeper
	Sampler   hostiface.StackSampler
	Logger    *zap.Logger
}

// NewCollaborators returns an empty Collaborators. New requires Broker and
// Allocator to be set; Sweeper, Sampler and Logger are optional (without a
// Sweeper post-clear is skipped, without a Sampler nothing is started or
// stopped, and a nil Logger falls back to a no-op logger).
func NewCollaborators() *Collaborators {
	return &Collaborators{}
}

func (c *Collaborators) WithBroker(b hostiface.CompilerBroker) *Collaborators {
	c.Broker = b
	return c
}

func (c *Collaborators) WithAllocator(a hostiface.CodeCacheAllocator) *Collaborators {
	c.Allocator = a
	return c
}

func (c *Collaborators) WithSweeper(s hostiface.CodeCacheSweeper) *Collaborators {
	c.Sweeper = s
	return c
}

func (c *Collaborators) WithSampler(s hostiface.StackSampler) *Collaborators {
	c.Sampler = s
	return c
}

func (c *Collaborators) WithLogger(l *zap.Logger) *Collaborators {
	c.Logger = l
	return c
}

// Validate checks that every required collaborator is set: JBolt always
// requires JIT top-tier compilation and a segmented code cache, so a
// CompilerBroker and CodeCacheAllocator must both be present.
func (c *Collaborators) Validate() error {
	if c.Broker == nil {
		return &ConfigError{"a CompilerBroker collaborator is required"}
	}
	if c.Allocator == nil {
		return &ConfigError{"a CodeCacheAllocator collaborator is required"}
	}
	return nil
}
