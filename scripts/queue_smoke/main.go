// Command queue_smoke hits a running portal instance and verifies the
// prioritized queue contract from the outside: authentication works, the
// ranking is monotonically non-increasing and ties keep oldest-first order.
// Intended for post-deploy smoke checks, not CI.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type loginResponse struct {
	Data struct {
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

type queueEntry struct {
	Request struct {
		ID        string    `json:"id"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"request"`
	PriorityScore int  `json:"priority_score"`
	DaysLeft      *int `json:"days_left"`
}

type queueResponse struct {
	Data []queueEntry `json:"data"`
}

func main() {
	var (
		base     string
		email    string
		password string
		timeout  time.Duration
	)
	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&email, "email", "", "clerk email")
	flag.StringVar(&password, "password", "", "clerk password")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if email == "" || password == "" {
		log.Fatal("both -email and -password are required")
	}

	client := &http.Client{Timeout: timeout}
	base = strings.TrimRight(base, "/")

	token, err := login(client, base, email, password)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	entries, err := fetchQueue(client, base, token)
	if err != nil {
		log.Fatalf("queue fetch failed: %v", err)
	}

	violations := checkOrdering(entries)
	fmt.Printf("Queue smoke check: %d entries, %d ordering violations\n", len(entries), len(violations))
	for _, v := range violations {
		fmt.Printf("  %s\n", v)
	}
	if len(violations) > 0 {
		os.Exit(1)
	}
}

func login(client *http.Client, base, email, password string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := client.Post(base+"/api/v1/auth/login", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var parsed loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.Data.AccessToken == "" {
		return "", fmt.Errorf("empty access token")
	}
	return parsed.Data.AccessToken, nil
}

func fetchQueue(client *http.Client, base, token string) ([]queueEntry, error) {
	req, err := http.NewRequest(http.MethodGet, base+"/api/v1/queue", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var parsed queueResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.Data, nil
}

func checkOrdering(entries []queueEntry) []string {
	var violations []string
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if cur.PriorityScore > prev.PriorityScore {
			violations = append(violations,
				fmt.Sprintf("%s (score %d) ranked below %s (score %d)",
					prev.Request.ID, prev.PriorityScore, cur.Request.ID, cur.PriorityScore))
			continue
		}
		if cur.PriorityScore == prev.PriorityScore && cur.Request.CreatedAt.Before(prev.Request.CreatedAt) {
			violations = append(violations,
				fmt.Sprintf("%s created %s should outrank %s created %s at equal score",
					cur.Request.ID, cur.Request.CreatedAt.Format(time.RFC3339),
					prev.Request.ID, prev.Request.CreatedAt.Format(time.RFC3339)))
		}
	}
	return violations
}
