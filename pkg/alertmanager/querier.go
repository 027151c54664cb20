package alertmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/alertmanager/api/v2/models"
	"k8s.io/client-go/kubernetes"
)

const alertsPath = "/api/v2/alerts"

// Querier reads the alerts currently known to AlertManager.
type Querier interface {
	Alerts(ctx context.Context) (models.GettableAlerts, error)
}

// HTTPQuerier talks to the AlertManager API directly, e.g. through a port-forward or ingress.
type HTTPQuerier struct {
	baseURL string
	client  *http.Client
}

func NewHTTPQuerier(baseURL string, client *http.Client) *HTTPQuerier {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPQuerier{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
}

func (q *HTTPQuerier) Alerts(ctx context.Context) (models.GettableAlerts, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.baseURL+alertsPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query alerts from '%s'", q.baseURL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alertmanager '%s' responded with status %d: %s", q.baseURL, resp.StatusCode, body)
	}
	return decodeAlerts(body)
}

// ProxyQuerier reaches the AlertManager API through the service proxy of the API server,
// so no network path to the cluster network is required.
type ProxyQuerier struct {
	clientset kubernetes.Interface
	namespace string
	service   string
	port      int32
}

func NewProxyQuerier(clientset kubernetes.Interface, namespace, service string, port int32) *ProxyQuerier {
	return &ProxyQuerier{
		clientset: clientset,
		namespace: namespace,
		service:   service,
		port:      port,
	}
}

func (q *ProxyQuerier) Alerts(ctx context.Context) (models.GettableAlerts, error) {
	body, err := q.clientset.CoreV1().Services(q.namespace).
		ProxyGet("http", q.service, strconv.Itoa(int(q.port)), alertsPath, nil).
		DoRaw(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query alerts through service proxy of '%s' (namespace: %s)",
			q.service, q.namespace)
	}
	return decodeAlerts(body)
}

func decodeAlerts(body []byte) (models.GettableAlerts, error) {
	var alerts models.GettableAlerts
	if err := json.Unmarshal(body, &alerts); err != nil {
		return nil, errors.Wrap(err, "failed to decode alerts")
	}
	return alerts, nil
}

// Verifier checks whether an alert reached AlertManager by matching alert names.
type Verifier struct {
	querier Querier
}

func NewVerifier(querier Querier) *Verifier {
	return &Verifier{querier: querier}
}

// Observed is true if an alert whose name contains alertName is known to AlertManager.
func (v *Verifier) Observed(ctx context.Context, alertName string) (bool, error) {
	alerts, err := v.querier.Alerts(ctx)
	if err != nil {
		return false, err
	}
	for _, alert := range alerts {
		if alert == nil {
			continue
		}
		if strings.Contains(alert.Labels["alertname"], alertName) {
			return true, nil
		}
	}
	return false, nil
}
