/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package extension

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	k8syaml "k8s.io/apimachinery/pkg/util/yaml"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	k8sclient "sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/envtest"
	"sigs.k8s.io/yaml"

	logutil "sigs.k8s.io/extension-registry/internal/telemetry/logging"
	"sigs.k8s.io/extension-registry/pkg/metrics"
)

var (
	ctx       context.Context
	logger    logr.Logger
	testEnv   *envtest.Environment
	k8sClient k8sclient.Client
	scheme    = runtime.NewScheme()
)

func TestExtensionIntegration(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Extension Registry Integration Suite")
}

var _ = ginkgo.BeforeSuite(func() {
	ctx = context.Background()
	logger = logutil.NewTestLogger().WithName("integration")
	ctrl.SetLogger(logger)
	metrics.Register()

	// The API server is optional; specs that need one skip without it.
	if os.Getenv("KUBEBUILDER_ASSETS") == "" {
		logger.Info("KUBEBUILDER_ASSETS is not set, cluster specs will be skipped")
		return
	}

	ginkgo.By("Starting the test API server")
	testEnv = &envtest.Environment{}
	cfg, err := testEnv.Start()
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	k8sClient, err = k8sclient.New(cfg, k8sclient.Options{Scheme: scheme})
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	ginkgo.By("Creating extension ConfigMaps")
	docs, err := readDocuments(filepath.Join("..", "..", "testdata", "extension-configmaps.yaml"))
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	for _, doc := range docs {
		obj := &unstructured.Unstructured{}
		gomega.Expect(yaml.Unmarshal(doc, obj)).To(gomega.Succeed())
		gomega.Expect(k8sClient.Create(ctx, obj)).To(gomega.Succeed())
	}
})

var _ = ginkgo.AfterSuite(func() {
	if testEnv != nil {
		ginkgo.By("Stopping the test API server")
		gomega.Expect(testEnv.Stop()).To(gomega.Succeed())
	}
})

func readDocuments(fp string) ([][]byte, error) {
	b, err := os.ReadFile(fp)
	if err != nil {
		return nil, err
	}
	var docs [][]byte
	reader := k8syaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(b)))
	for {
		doc, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
