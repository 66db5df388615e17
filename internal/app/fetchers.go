package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mosync/internal/cache"
	"github.com/vladislavdragonenkov/mosync/internal/collection"
	"github.com/vladislavdragonenkov/mosync/internal/domain"
)

const (
	fetchTimeout      = 15 * time.Second
	maxResponseBytes  = 32 << 20 // 32 MiB
	ordersPath        = "/api/orders"
	referencesPathFmt = "/api/%s"
)

func newAPIClient() *http.Client {
	return &http.Client{Timeout: fetchTimeout}
}

// fetchJSON выполняет GET и возвращает тело ответа.
// Не-2xx статус считается ошибкой загрузки.
func fetchJSON(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("request %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", url, err)
	}

	return body, nil
}

// ordersFetcher загружает коллекцию заказов и нормализует форму ответа.
func ordersFetcher(client *http.Client, baseURL string, logger *log.Entry) cache.FetchFunc[collection.Payload] {
	url := baseURL + ordersPath
	return func(ctx context.Context) (collection.Payload, error) {
		raw, err := fetchJSON(ctx, client, url)
		if err != nil {
			return collection.Payload{}, err
		}
		return collection.Normalize(raw, logger), nil
	}
}

// referenceFetcher загружает справочный список по имени ресурса.
func referenceFetcher(client *http.Client, baseURL, name string, logger *log.Entry) cache.FetchFunc[[]domain.Reference] {
	url := baseURL + fmt.Sprintf(referencesPathFmt, name)
	return func(ctx context.Context) ([]domain.Reference, error) {
		raw, err := fetchJSON(ctx, client, url)
		if err != nil {
			return nil, err
		}
		return collection.NormalizeList(raw, logger), nil
	}
}
