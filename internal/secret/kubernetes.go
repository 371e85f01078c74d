package secret

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const providerKubernetes = "k8s"

// KubernetesConfig selects the cluster and default namespace
// secrets are read from.
type KubernetesConfig struct {
	KubeConfigPath string
	Namespace      string
}

// KubernetesResolver reads keys out of Secret objects. On Toolforge
// the tool's envvars are stored this way in the tool namespace.
type KubernetesResolver struct {
	namespace  string
	kubeconfig string

	once   sync.Once
	client kubernetes.Interface
	err    error
}

func NewKubernetesResolver(cfg KubernetesConfig) *KubernetesResolver {
	return &KubernetesResolver{
		namespace:  defaultNamespace(cfg.Namespace),
		kubeconfig: cfg.KubeConfigPath,
	}
}

// NewKubernetesResolverWithClient uses an existing clientset.
func NewKubernetesResolverWithClient(client kubernetes.Interface, namespace string) *KubernetesResolver {
	r := &KubernetesResolver{namespace: defaultNamespace(namespace), client: client}
	r.once.Do(func() {})
	return r
}

func defaultNamespace(ns string) string {
	if ns = strings.TrimSpace(ns); ns != "" {
		return ns
	}
	return "default"
}

// Resolve handles secret://k8s/<secret>/<key> and
// secret://k8s/<namespace>/<secret>/<key>.
func (r *KubernetesResolver) Resolve(ctx context.Context, ref string) (string, error) {
	reference, err := Parse(ref)
	if err != nil {
		return "", err
	}
	if reference.Provider != providerKubernetes && reference.Provider != "kubernetes" {
		return "", fmt.Errorf("kubernetes resolver cannot handle provider %q", reference.Provider)
	}

	namespace := r.namespace
	var name, key string
	switch s := reference.Segments; len(s) {
	case 2:
		name, key = s[0], s[1]
	case 3:
		namespace, name, key = s[0], s[1], s[2]
	default:
		return "", fmt.Errorf("kubernetes secret reference %q must be secret://k8s/[namespace/]<secret>/<key>", ref)
	}

	client, err := r.clientset()
	if err != nil {
		return "", err
	}

	obj, err := client.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("load kubernetes secret %s/%s: %w", namespace, name, err)
	}

	value, ok := obj.Data[key]
	if !ok {
		return "", fmt.Errorf("kubernetes secret %s/%s missing key %s", namespace, name, key)
	}
	return string(value), nil
}

func (r *KubernetesResolver) clientset() (kubernetes.Interface, error) {
	r.once.Do(func() {
		cfg, err := restConfig(r.kubeconfig)
		if err != nil {
			r.err = fmt.Errorf("load kubernetes config: %w", err)
			return
		}
		r.client, r.err = kubernetes.NewForConfig(cfg)
	})
	return r.client, r.err
}

func restConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".kube", "config")
		if _, err := os.Stat(path); err == nil {
			return clientcmd.BuildConfigFromFlags("", path)
		}
	}
	return nil, fmt.Errorf("no kubeconfig found")
}
