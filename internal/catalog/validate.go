package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Validate 检查 catalog 自洽性：键与名称一致、依赖存在且无环。
func (c *Catalog) Validate() error {
	if c == nil {
		return errors.New("catalog is nil")
	}
	for key, entry := range c.Bundles {
		if key == "" {
			return errors.New("bundle with empty name")
		}
		if entry.Name != key {
			return fmt.Errorf("bundle %s: entry name %q does not match key", key, entry.Name)
		}
		for _, dep := range entry.Dependencies {
			if dep == key {
				return fmt.Errorf("bundle %s: depends on itself", key)
			}
			if _, ok := c.Bundles[dep]; !ok {
				return fmt.Errorf("bundle %s: dependency %s not in catalog", key, dep)
			}
		}
	}
	return c.checkCycles()
}

const (
	unvisited = iota
	visiting
	done
)

func (c *Catalog) checkCycles() error {
	state := make(map[string]int, len(c.Bundles))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, n := range stack {
				if n == name {
					start = i
					break
				}
			}
			cycle := append(append([]string(nil), stack[start:]...), name)
			return fmt.Errorf("dependency cycle: %s", strings.Join(cycle, " -> "))
		}
		state[name] = visiting
		stack = append(stack, name)
		for _, dep := range c.Bundles[name].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, name := range c.Names() {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}
