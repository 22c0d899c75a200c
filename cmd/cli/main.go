package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
)

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	key := os.Getenv("ADMIN_API_KEY")

	reader := bufio.NewReader(os.Stdin)
	ask := func(prompt string) string {
		fmt.Print(prompt)
		s, _ := reader.ReadString('\n')
		return strings.TrimSpace(s)
	}

	raw := ask("Enter a site URL to monitor (e.g., https://example.com): ")
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		fmt.Println("Invalid URL.")
		return
	}
	name := ask("Name (blank = URL): ")
	interval := 60
	if s := ask("Check interval in seconds [60]: "); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			fmt.Println("Interval must be a number of seconds.")
			return
		}
		interval = n
	}

	body, _ := json.Marshal(map[string]any{
		"owner_id":       os.Getenv("OWNER_ID"),
		"name":           name,
		"url":            raw,
		"check_interval": interval,
	})
	req, _ := http.NewRequest(http.MethodPost, api+"/api/monitors", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println("Error contacting API:", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var m struct {
			ID            string `json:"id"`
			CheckInterval int    `json:"check_interval"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&m)
		fmt.Printf("Added monitor %s (every %ds). It is probed on the next tick; see GET /api/monitors/%s/checks.\n", m.ID, m.CheckInterval, m.ID)
	} else {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		fmt.Println("API returned status:", resp.Status, strings.TrimSpace(string(msg)))
	}
}
