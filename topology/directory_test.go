package topology

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectoryBasic(t *testing.T) {
	var d Directory
	require.Empty(t, d.Snapshot())
	require.Equal(t, 0, d.Len())

	a := &Node{URL: "http://a"}
	b := &Node{URL: "http://b"}
	d.Replace([]*Node{a, b})

	snap := d.Snapshot()
	require.Equal(t, []*Node{a, b}, snap)
	require.Equal(t, 2, d.Len())

	// mutating the returned snapshot must not affect the directory
	snap[0] = b
	require.Same(t, a, d.Snapshot()[0])
}

func TestDirectoryReplaceCopiesInput(t *testing.T) {
	a := &Node{URL: "http://a"}
	b := &Node{URL: "http://b"}

	input := []*Node{a, b}
	d := NewDirectory(input)
	input[0] = b

	require.Same(t, a, d.Snapshot()[0])
}

func TestDirectoryConcurrentSwap(t *testing.T) {
	makeSet := func(prefix string, n int) []*Node {
		nodes := make([]*Node, n)
		for i := range nodes {
			nodes[i] = &Node{URL: fmt.Sprintf("http://%s-%d", prefix, i)}
		}
		return nodes
	}

	oldSet := makeSet("old", 3)
	newSet := makeSet("new", 5)
	d := NewDirectory(oldSet)

	var wg sync.WaitGroup
	stopCh := make(chan struct{})
	errCh := make(chan error, 1)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stopCh:
					return
				default:
				}

				snap := d.Snapshot()
				if !nodesEqual(snap, oldSet) && !nodesEqual(snap, newSet) {
					select {
					case errCh <- fmt.Errorf("observed torn snapshot: %v", snap):
					default:
					}
					return
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		if i%2 == 0 {
			d.Replace(newSet)
		} else {
			d.Replace(oldSet)
		}
	}

	close(stopCh)
	wg.Wait()

	select {
	case err := <-errCh:
		t.Fatal(err)
	default:
	}
}

func nodesEqual(a, b []*Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
