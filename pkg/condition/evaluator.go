// Package condition evaluates boolean expressions over node outputs using
// expr-lang, with an LRU cache of compiled programs.
package condition

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Cache is a thread-safe LRU cache for compiled expression programs.
type Cache struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key     string
	program *vm.Program
}

// NewCache creates a cache with the specified capacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 100
	}
	return &Cache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
	}
}

// Get retrieves a compiled program from cache.
func (c *Cache) Get(condition string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, found := c.cache[condition]; found {
		c.lruList.MoveToFront(element)
		return element.Value.(*cacheEntry).program, true
	}
	return nil, false
}

// Put stores a compiled program in cache, evicting the oldest entry when full.
func (c *Cache) Put(condition string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, found := c.cache[condition]; found {
		c.lruList.MoveToFront(element)
		element.Value.(*cacheEntry).program = program
		return
	}

	element := c.lruList.PushFront(&cacheEntry{key: condition, program: program})
	c.cache[condition] = element

	if c.lruList.Len() > c.capacity {
		oldest := c.lruList.Back()
		if oldest != nil {
			c.lruList.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the current number of cached programs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Evaluator evaluates boolean conditions against node outputs.
type Evaluator struct {
	cache *Cache
}

// NewEvaluator creates an evaluator with a default-sized program cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: NewCache(100)}
}

// Evaluate compiles (or reuses) the condition and runs it against the
// given output. The environment binds every top-level field of output
// directly plus "output" for the whole map:
//
//	score > 5
//	output.items.count >= 3
//
// An empty condition is true. A non-boolean result is an error.
func (e *Evaluator) Evaluate(cond string, output map[string]any) (bool, error) {
	if cond == "" {
		return true, nil
	}

	env := make(map[string]any, len(output)+1)
	for k, v := range output {
		env[k] = v
	}
	env["output"] = output

	program, found := e.cache.Get(cond)
	if !found {
		var err error
		program, err = expr.Compile(cond, expr.AllowUndefinedVariables())
		if err != nil {
			return false, fmt.Errorf("failed to compile condition: %w", err)
		}
		e.cache.Put(cond, program)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition: %w", err)
	}

	boolResult, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition must return boolean, got: %T", result)
	}
	return boolResult, nil
}
