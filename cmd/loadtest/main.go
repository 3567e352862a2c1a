package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Result records one HTTP outcome for the summary.
type Result struct {
	Status int
	Body   string
	Err    error
}

// Oversell driver: create one draft order per user for the same product,
// then validate them all concurrently. With stock S and per-order quantity q
// at most S/q validations may succeed; the final inventory check proves
// reserved never exceeded quantity.
func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	adminToken := flag.String("admin-token", "dev-admin-token", "admin token for setup/inventory endpoints")
	setup := flag.Bool("setup", true, "create a fresh product + inventory before the run")
	stock := flag.Int64("stock", 5, "initial stock for the test product")
	productID := flag.Uint("product", 0, "existing product id (ignored when -setup)")
	nUsers := flag.Int("users", 50, "distinct users / draft orders")
	quantity := flag.Int("qty", 1, "quantity per order")
	concurrency := flag.Int("c", 25, "max concurrency for validations")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	pid := *productID
	if *setup {
		var err error
		pid, err = setupProduct(client, *baseURL, *adminToken, *stock)
		if err != nil {
			panic(fmt.Sprintf("setup failed: %v", err))
		}
		fmt.Printf("setup ok: product=%d stock=%d\n", pid, *stock)
	}
	if pid == 0 {
		panic("need -product when -setup=false")
	}

	fmt.Printf("creating %d draft orders (product=%d qty=%d)\n", *nUsers, pid, *quantity)
	orderIDs := make([]uint, 0, *nUsers)
	for i := 0; i < *nUsers; i++ {
		id, err := createOrder(client, *baseURL, int64(i+1), pid, *quantity)
		if err != nil {
			panic(fmt.Sprintf("create order for user %d: %v", i+1, err))
		}
		orderIDs = append(orderIDs, id)
	}

	fmt.Printf("start oversell test: %d concurrent validations (c=%d)\n", len(orderIDs), *concurrency)
	results := runValidations(client, *baseURL, orderIDs, *concurrency)
	printSummary("validate", results)

	ok := 0
	for _, r := range results {
		if r.Err == nil && r.Status == http.StatusOK {
			ok++
		}
	}
	qty, reserved, err := getInventory(client, *baseURL, *adminToken, pid)
	if err != nil {
		fmt.Println("inventory check err:", err)
		return
	}
	fmt.Printf("final inventory: quantity=%d reserved=%d (validated=%d, expected reserved=%d)\n",
		qty, reserved, ok, int64(ok)*int64(*quantity))
	if reserved > qty {
		fmt.Println("OVERSELL DETECTED: reserved > quantity")
	}
}

func runValidations(client *http.Client, baseURL string, orderIDs []uint, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, len(orderIDs))

	for i, id := range orderIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, orderID uint) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = postOnce(client, fmt.Sprintf("%s/api/orders/%d/validate", baseURL, orderID), nil)
		}(i, id)
	}

	wg.Wait()
	return results
}

func setupProduct(client *http.Client, baseURL, adminToken string, stock int64) (uint, error) {
	body := map[string]any{
		"sku":         fmt.Sprintf("LT-%d", time.Now().UnixNano()),
		"title":       fmt.Sprintf("Load Test Book %d", time.Now().UnixNano()),
		"author":      "loadtest",
		"price_cents": 1999,
	}
	var resp struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	if err := doJSON(client, "POST", baseURL+"/api/products", body, adminToken, &resp); err != nil {
		return 0, err
	}
	inv := map[string]any{"product_id": resp.Data.ID, "quantity": stock}
	if err := doJSON(client, "POST", baseURL+"/api/inventory", inv, adminToken, nil); err != nil {
		return 0, err
	}
	return resp.Data.ID, nil
}

func createOrder(client *http.Client, baseURL string, userID int64, productID uint, quantity int) (uint, error) {
	body := map[string]any{
		"user_id": userID,
		"items":   []map[string]any{{"product_id": productID, "quantity": quantity}},
	}
	var resp struct {
		Data struct {
			OrderID uint `json:"order_id"`
		} `json:"data"`
	}
	if err := doJSON(client, "POST", baseURL+"/api/orders", body, "", &resp); err != nil {
		return 0, err
	}
	if resp.Data.OrderID == 0 {
		return 0, fmt.Errorf("no order_id in response")
	}
	return resp.Data.OrderID, nil
}

func getInventory(client *http.Client, baseURL, adminToken string, productID uint) (qty, reserved int64, err error) {
	req, err := http.NewRequest("GET", fmt.Sprintf("%s/api/inventory?product_id=%d", baseURL, productID), nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("X-Admin-Token", adminToken)
	res, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer res.Body.Close()
	var resp struct {
		Data []struct {
			Quantity int64 `json:"quantity"`
			Reserved int64 `json:"reserved"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return 0, 0, err
	}
	if len(resp.Data) == 0 {
		return 0, 0, fmt.Errorf("no inventory row for product %d", productID)
	}
	return resp.Data[0].Quantity, resp.Data[0].Reserved, nil
}

func postOnce(client *http.Client, url string, body any) Result {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Result{Err: err}
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest("POST", url, rd)
	if err != nil {
		return Result{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	return Result{Status: res.StatusCode, Body: string(b)}
}

func doJSON(client *http.Client, method, url string, body any, adminToken string, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if adminToken != "" {
		req.Header.Set("X-Admin-Token", adminToken)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, url, res.StatusCode, string(raw))
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func printSummary(name string, results []Result) {
	counts := map[int]int{}
	errs := 0
	for _, r := range results {
		if r.Err != nil {
			errs++
			continue
		}
		counts[r.Status]++
	}
	fmt.Printf("[%s] total=%d errors=%d\n", name, len(results), errs)
	for status, n := range counts {
		fmt.Printf("  status %d: %d\n", status, n)
	}
}
