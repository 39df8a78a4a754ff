// Manual end-to-end harness for the native engine. Not a go test; run
// scenarios by name:
//
//	go run tests/test.go <scenario>
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/aiifabbf/kvs/internal/engine"
)

func main() {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})
	slog.SetDefault(slog.New(handler))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "churn":
		testChurn()
	case "integrity":
		testIntegrity()
	case "reopen":
		testReopen()
	default:
		fmt.Printf("Unknown scenario: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: go run tests/test.go <scenario>")
	fmt.Println("\nAvailable scenarios:")
	fmt.Println("  churn     - Random sets and removes, checking the slot layout after every step")
	fmt.Println("  integrity - Write 10,000 keys, then read 1,000 back at random")
	fmt.Println("  reopen    - Write, reopen, and verify every key survived")
}

func newStore() (*engine.KVStore, string) {
	root, err := os.MkdirTemp("", "kvs-harness-*")
	if err != nil {
		fmt.Printf("Failed to create scratch directory: %v\n", err)
		os.Exit(1)
	}
	store, err := engine.OpenKV(root)
	if err != nil {
		fmt.Printf("Failed to open store: %v\n", err)
		os.Exit(1)
	}
	return store, root
}

// slotLayout returns the numeric file names under root, sorted.
func slotLayout(root string) []int {
	dirents, err := os.ReadDir(root)
	if err != nil {
		fmt.Printf("Failed to read store directory: %v\n", err)
		os.Exit(1)
	}
	var slots []int
	for _, d := range dirents {
		if i, err := strconv.Atoi(d.Name()); err == nil {
			slots = append(slots, i)
		}
	}
	sort.Ints(slots)
	return slots
}

func checkLayout(root string, live int) bool {
	slots := slotLayout(root)
	if len(slots) != live {
		fmt.Printf("  Layout mismatch: %d slot files, %d live keys\n", len(slots), live)
		return false
	}
	for i, s := range slots {
		if s != i {
			fmt.Printf("  Layout mismatch: slot files %v are not contiguous\n", slots)
			return false
		}
	}
	return true
}

// Scenario 1: random churn with layout checks.
func testChurn() {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Scenario: churn")
	fmt.Println(strings.Repeat("=", 60))

	store, root := newStore()
	defer os.RemoveAll(root)
	defer store.Close()

	model := make(map[string]string)
	keys := 50
	steps := 2000
	failures := 0

	for step := 0; step < steps; step++ {
		key := fmt.Sprintf("key_%d", rand.Intn(keys))
		if rand.Intn(3) == 0 {
			err := store.Remove(key)
			if _, live := model[key]; live {
				if err != nil {
					fmt.Printf("Step %d: remove %s failed: %v\n", step, key, err)
					failures++
				}
				delete(model, key)
			} else if err == nil {
				fmt.Printf("Step %d: remove of absent %s succeeded\n", step, key)
				failures++
			}
		} else {
			value := fmt.Sprintf("value_%d", step)
			if err := store.Set(key, value); err != nil {
				fmt.Printf("Step %d: set %s failed: %v\n", step, key, err)
				failures++
			} else {
				model[key] = value
			}
		}

		if !checkLayout(root, len(model)) {
			fmt.Printf("  ...at step %d\n", step)
			failures++
			break
		}
	}

	for key, want := range model {
		value, ok, err := store.Get(key)
		if err != nil || !ok || value != want {
			fmt.Printf("Readback of %s = %q, %v, %v; want %q\n", key, value, ok, err, want)
			failures++
		}
	}

	if failures > 0 {
		fmt.Printf("\n❌ SCENARIO FAILED: %d failures\n", failures)
		os.Exit(1)
	}
	fmt.Printf("\n✅ SCENARIO PASSED: %d steps, %d live keys, layout stayed contiguous\n", steps, len(model))
}

// Scenario 2: bulk write then random readback.
func testIntegrity() {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Scenario: integrity")
	fmt.Println(strings.Repeat("=", 60))

	store, root := newStore()
	defer os.RemoveAll(root)
	defer store.Close()

	totalKeys := 10000
	fmt.Printf("Writing %d keys...\n", totalKeys)
	for i := 0; i < totalKeys; i++ {
		if err := store.Set(fmt.Sprintf("key_%d", i), fmt.Sprintf("value_%d", i)); err != nil {
			fmt.Printf("Failed to set key_%d: %v\n", i, err)
			os.Exit(1)
		}
	}

	fmt.Println("Reading 1,000 keys back at random...")
	errors := 0
	for i := 0; i < 1000; i++ {
		n := rand.Intn(totalKeys)
		value, ok, err := store.Get(fmt.Sprintf("key_%d", n))
		if err != nil || !ok || value != fmt.Sprintf("value_%d", n) {
			errors++
			if errors <= 10 {
				fmt.Printf("  Readback of key_%d = %q, %v, %v\n", n, value, ok, err)
			}
		}
	}

	if errors > 0 {
		fmt.Printf("\n❌ SCENARIO FAILED: %d errors\n", errors)
		os.Exit(1)
	}
	fmt.Println("\n✅ SCENARIO PASSED: all random reads returned the written values")
}

// Scenario 3: persistence across reopen.
func testReopen() {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Scenario: reopen")
	fmt.Println(strings.Repeat("=", 60))

	store, root := newStore()
	defer os.RemoveAll(root)

	totalKeys := 1000
	for i := 0; i < totalKeys; i++ {
		if err := store.Set(fmt.Sprintf("key_%d", i), fmt.Sprintf("value_%d", i)); err != nil {
			fmt.Printf("Failed to set key_%d: %v\n", i, err)
			os.Exit(1)
		}
	}
	// Every other key removed before the restart.
	for i := 0; i < totalKeys; i += 2 {
		if err := store.Remove(fmt.Sprintf("key_%d", i)); err != nil {
			fmt.Printf("Failed to remove key_%d: %v\n", i, err)
			os.Exit(1)
		}
	}
	store.Close()

	reopened, err := engine.OpenKV(root)
	if err != nil {
		fmt.Printf("Failed to reopen store: %v\n", err)
		os.Exit(1)
	}
	defer reopened.Close()

	errors := 0
	for i := 0; i < totalKeys; i++ {
		value, ok, err := reopened.Get(fmt.Sprintf("key_%d", i))
		removed := i%2 == 0
		switch {
		case err != nil:
			errors++
		case removed && ok:
			errors++
		case !removed && (!ok || value != fmt.Sprintf("value_%d", i)):
			errors++
		}
	}
	if !checkLayout(root, totalKeys/2) {
		errors++
	}

	if errors > 0 {
		fmt.Printf("\n❌ SCENARIO FAILED: %d errors\n", errors)
		os.Exit(1)
	}
	fmt.Printf("\n✅ SCENARIO PASSED: %d keys survived the reopen\n", totalKeys/2)
}
