package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// baseURL is the editor backend under test. Adjust it to the running server.
var baseURL = "http://localhost:8080"

var client = &http.Client{Timeout: 10 * time.Second}

const (
	numWorkers        = 50
	requestsPerWorker = 20

	requestSource = "race-script"
)

type node struct {
	ID string `json:"id"`
}

type edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

type state struct {
	Workflow struct {
		Nodes []node `json:"nodes"`
		Edges []edge `json:"edges"`
	} `json:"workflow"`
	CanUndo bool `json:"canUndo"`
	CanRedo bool `json:"canRedo"`
}

var (
	failures     int
	failuresLock sync.Mutex
)

func recordFailure(format string, args ...any) {
	failuresLock.Lock()
	failures++
	failuresLock.Unlock()
	log.Printf(format, args...)
}

func call(method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Source", requestSource)

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

// worker interleaves node additions, edge creation and undo so that the
// store's history and edge id allocation are hit from many goroutines.
func worker(id int, wg *sync.WaitGroup) {
	defer wg.Done()

	for i := 0; i < requestsPerWorker; i++ {
		nodeID := fmt.Sprintf("race_%d_%d", id, i)

		status, body, err := call(http.MethodPost, "/api/workflow/nodes", map[string]any{
			"id":   nodeID,
			"type": "action",
		})
		if err != nil {
			log.Printf("Worker %d: add node failed: %v", id, err)
			continue
		}
		if status != http.StatusCreated {
			recordFailure("Worker %d: add node returned %d: %s", id, status, body)
			continue
		}

		status, body, err = call(http.MethodPost, "/api/workflow/edges", map[string]any{
			"source": "start_1",
			"target": nodeID,
		})
		if err == nil && status != http.StatusCreated {
			recordFailure("Worker %d: connect returned %d: %s", id, status, body)
		}

		if i%3 == 0 {
			status, body, err = call(http.MethodPost, "/api/workflow/undo", nil)
			if err == nil && status != http.StatusOK {
				recordFailure("Worker %d: undo returned %d: %s", id, status, body)
			}
		}
	}
}

// verify checks that the final workflow has no duplicate ids after the run
func verify() {
	status, body, err := call(http.MethodGet, "/api/workflow", nil)
	if err != nil || status != http.StatusOK {
		recordFailure("Failed to read final workflow: status %d, err %v", status, err)
		return
	}

	var s state
	err = json.Unmarshal(body, &s)
	if err != nil {
		recordFailure("Failed to decode final workflow: %v", err)
		return
	}

	seen := make(map[string]bool)
	for _, n := range s.Workflow.Nodes {
		if seen[n.ID] {
			recordFailure("Duplicate node id %s", n.ID)
		}
		seen[n.ID] = true
	}

	edges := make(map[string]bool)
	for _, e := range s.Workflow.Edges {
		if edges[e.ID] {
			recordFailure("Duplicate edge id %s", e.ID)
		}
		edges[e.ID] = true
	}

	log.Printf("Final workflow: %d nodes, %d edges, canUndo=%t", len(s.Workflow.Nodes), len(s.Workflow.Edges), s.CanUndo)
}

func main() {
	log.Printf("Starting concurrent editing run against %s", baseURL)

	status, body, err := call(http.MethodPost, "/api/workflow/reset", nil)
	if err != nil || status != http.StatusOK {
		log.Fatalf("Reset failed: status %d, err %v, body %s", status, err, body)
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go worker(i+1, &wg)
	}
	wg.Wait()

	verify()

	if failures > 0 {
		log.Printf("--- Result: %d FAILURES ---", failures)
		return
	}
	log.Printf("--- Result: OK, %d workers x %d requests ---", numWorkers, requestsPerWorker)
}
