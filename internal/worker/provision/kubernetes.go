package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const managedBy = "shipyard"

// KubernetesConfig holds settings shared by the Kubernetes provisioners.
type KubernetesConfig struct {
	// Namespace where workloads are created
	Namespace string
	// ServiceAccount for workload pods (optional)
	ServiceAccount string
	CPULimit       string
	MemoryLimit    string
	// GPULimit is applied to training pods when the repository needs an accelerator.
	GPULimit string

	// BuilderImage is the kaniko executor image.
	BuilderImage string
	// RegistrySecret holds a docker config.json mounted into the builder.
	RegistrySecret string
	// StorageSecret holds "access-key" and "secret-key" for reading the build context.
	StorageSecret   string
	StorageRegion   string
	StorageEndpoint string

	Replicas int32
}

func (c KubernetesConfig) withDefaults() KubernetesConfig {
	if c.Namespace == "" {
		c.Namespace = "default"
	}
	if c.CPULimit == "" {
		c.CPULimit = "2"
	}
	if c.MemoryLimit == "" {
		c.MemoryLimit = "4Gi"
	}
	if c.BuilderImage == "" {
		c.BuilderImage = "gcr.io/kaniko-project/executor:latest"
	}
	if c.RegistrySecret == "" {
		c.RegistrySecret = "registry-credentials"
	}
	if c.StorageSecret == "" {
		c.StorageSecret = "storage-credentials"
	}
	if c.Replicas <= 0 {
		c.Replicas = 2
	}
	return c
}

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return os.Getenv("USERPROFILE") // Windows
}

// NewClientset tries in-cluster configuration first and falls back to ~/.kube/config.
func NewClientset(logger *slog.Logger) (kubernetes.Interface, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := filepath.Join(homeDir(), ".kube", "config")
		logger.Info("in-cluster config not available, using kubeconfig", "path", kubeconfig, "err", err)
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}
	return clientset, nil
}

// EnsureNamespace creates the namespace if it does not exist.
func EnsureNamespace(ctx context.Context, clientset kubernetes.Interface, name string) error {
	_, err := clientset.CoreV1().Namespaces().Create(ctx, &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: map[string]string{"app.kubernetes.io/managed-by": managedBy},
		},
	}, metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("create namespace %s: %w", name, err)
	}
	return nil
}

type kube struct {
	clientset kubernetes.Interface
	config    KubernetesConfig
}

func workloadName(w Workload, jobID string) string {
	name := strings.ToLower(fmt.Sprintf("%s-%s-%s", managedBy, w, jobID))
	if len(name) > 63 {
		name = strings.TrimRight(name[:63], "-")
	}
	return name
}

func labels(w Workload, jobID string) map[string]string {
	return map[string]string{
		"app.kubernetes.io/managed-by": managedBy,
		"shipyard/workload":            string(w),
		"shipyard/job-id":              jobID,
	}
}

func (k *kube) createJob(ctx context.Context, w Workload, jobID string, pod corev1.PodSpec) (*Handle, error) {
	name := workloadName(w, jobID)
	backoffLimit := int32(0)
	ttl := int32(24 * 3600)

	pod.RestartPolicy = corev1.RestartPolicyNever
	if k.config.ServiceAccount != "" {
		pod.ServiceAccountName = k.config.ServiceAccount
	}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: k.config.Namespace,
			Labels:    labels(w, jobID),
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						"job-name":                     name,
						"app.kubernetes.io/managed-by": managedBy,
					},
				},
				Spec: pod,
			},
		},
	}

	// A redelivered job reuses the name; drop the previous run first.
	propagation := metav1.DeletePropagationForeground
	err := k.clientset.BatchV1().Jobs(k.config.Namespace).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &propagation})
	if err != nil && !apierrors.IsNotFound(err) {
		return nil, fmt.Errorf("failed to delete previous job %s: %w", name, err)
	}

	created, err := k.clientset.BatchV1().Jobs(k.config.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes job: %w", err)
	}
	return &Handle{Workload: w, Name: created.Name, Namespace: created.Namespace}, nil
}

// jobStatus maps a batch Job onto the four-state lifecycle.
func jobStatus(job *batchv1.Job) Status {
	switch {
	case job.Status.Succeeded > 0:
		return StatusSucceeded
	case job.Status.Failed > 0:
		return StatusFailed
	case job.Status.Active > 0:
		return StatusRunning
	}
	for _, c := range job.Status.Conditions {
		if c.Type == batchv1.JobFailed && c.Status == corev1.ConditionTrue {
			return StatusFailed
		}
		if c.Type == batchv1.JobComplete && c.Status == corev1.ConditionTrue {
			return StatusSucceeded
		}
	}
	return StatusPending
}

func (k *kube) jobStatus(ctx context.Context, h *Handle) (Status, error) {
	job, err := k.clientset.BatchV1().Jobs(h.Namespace).Get(ctx, h.Name, metav1.GetOptions{})
	if err != nil {
		return StatusPending, fmt.Errorf("get job %s: %w", h.Name, err)
	}
	return jobStatus(job), nil
}

func (k *kube) podLogs(ctx context.Context, namespace, selector string) (string, error) {
	pods, err := k.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return "", fmt.Errorf("list pods: %w", err)
	}
	if len(pods.Items) == 0 {
		return "", nil
	}
	sort.Slice(pods.Items, func(i, j int) bool {
		return pods.Items[i].CreationTimestamp.Before(&pods.Items[j].CreationTimestamp)
	})

	stream, err := k.clientset.CoreV1().Pods(namespace).GetLogs(pods.Items[0].Name, &corev1.PodLogOptions{}).Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("stream logs: %w", err)
	}
	defer stream.Close()

	out, err := io.ReadAll(io.LimitReader(stream, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read logs: %w", err)
	}
	return string(out), nil
}

func (k *kube) resources(gpu bool) (corev1.ResourceRequirements, error) {
	cpu, err := resource.ParseQuantity(k.config.CPULimit)
	if err != nil {
		return corev1.ResourceRequirements{}, fmt.Errorf("invalid cpu limit %q: %w", k.config.CPULimit, err)
	}
	mem, err := resource.ParseQuantity(k.config.MemoryLimit)
	if err != nil {
		return corev1.ResourceRequirements{}, fmt.Errorf("invalid memory limit %q: %w", k.config.MemoryLimit, err)
	}
	limits := corev1.ResourceList{
		corev1.ResourceCPU:    cpu,
		corev1.ResourceMemory: mem,
	}
	if gpu && k.config.GPULimit != "" {
		q, err := resource.ParseQuantity(k.config.GPULimit)
		if err != nil {
			return corev1.ResourceRequirements{}, fmt.Errorf("invalid gpu limit %q: %w", k.config.GPULimit, err)
		}
		limits["nvidia.com/gpu"] = q
	}
	return corev1.ResourceRequirements{Limits: limits}, nil
}

func envList(m map[string]string) []corev1.EnvVar {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]corev1.EnvVar, 0, len(keys))
	for _, k := range keys {
		env = append(env, corev1.EnvVar{Name: k, Value: m[k]})
	}
	return env
}

// KubernetesBuilder builds and pushes the image with a kaniko Job.
type KubernetesBuilder struct{ kube }

// NewKubernetesBuilder creates a builder.
func NewKubernetesBuilder(clientset kubernetes.Interface, cfg KubernetesConfig) *KubernetesBuilder {
	return &KubernetesBuilder{kube{clientset: clientset, config: cfg.withDefaults()}}
}

// Submit starts the build. Without a context URL there is nothing to build from and the stage is skipped.
func (b *KubernetesBuilder) Submit(ctx context.Context, jobID string, p Params) (*Handle, error) {
	if p.ContextURL == "" || p.Image == "" {
		return nil, nil
	}

	secretEnv := func(name, key string) corev1.EnvVar {
		return corev1.EnvVar{Name: name, ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: b.config.StorageSecret},
				Key:                  key,
			},
		}}
	}
	env := []corev1.EnvVar{
		secretEnv("AWS_ACCESS_KEY_ID", "access-key"),
		secretEnv("AWS_SECRET_ACCESS_KEY", "secret-key"),
	}
	if b.config.StorageRegion != "" {
		env = append(env, corev1.EnvVar{Name: "AWS_REGION", Value: b.config.StorageRegion})
	}
	if b.config.StorageEndpoint != "" {
		env = append(env,
			corev1.EnvVar{Name: "S3_ENDPOINT", Value: b.config.StorageEndpoint},
			corev1.EnvVar{Name: "S3_FORCE_PATH_STYLE", Value: "true"},
		)
	}

	res, err := b.resources(false)
	if err != nil {
		return nil, err
	}

	pod := corev1.PodSpec{
		Containers: []corev1.Container{{
			Name:  "builder",
			Image: b.config.BuilderImage,
			Args: []string{
				"--context=" + p.ContextURL,
				"--dockerfile=Dockerfile",
				"--destination=" + p.Image,
				"--cache=true",
			},
			Env:       env,
			Resources: res,
			VolumeMounts: []corev1.VolumeMount{{
				Name:      "docker-config",
				MountPath: "/kaniko/.docker",
			}},
		}},
		Volumes: []corev1.Volume{{
			Name: "docker-config",
			VolumeSource: corev1.VolumeSource{Secret: &corev1.SecretVolumeSource{
				SecretName: b.config.RegistrySecret,
				Items:      []corev1.KeyToPath{{Key: ".dockerconfigjson", Path: "config.json"}},
			}},
		}},
	}
	return b.createJob(ctx, WorkloadBuild, jobID, pod)
}

// Status maps the kaniko Job's counters.
func (b *KubernetesBuilder) Status(ctx context.Context, h *Handle) (Status, error) {
	return b.jobStatus(ctx, h)
}

// Logs returns the builder pod output.
func (b *KubernetesBuilder) Logs(ctx context.Context, h *Handle) (string, error) {
	return b.podLogs(ctx, h.Namespace, "job-name="+h.Name)
}

// KubernetesTrainer runs training_wrapper.py in the built image as a Job.
type KubernetesTrainer struct{ kube }

// NewKubernetesTrainer creates a trainer.
func NewKubernetesTrainer(clientset kubernetes.Interface, cfg KubernetesConfig) *KubernetesTrainer {
	return &KubernetesTrainer{kube{clientset: clientset, config: cfg.withDefaults()}}
}

// Submit starts training. Without an image there is nothing to run and the stage is skipped.
func (t *KubernetesTrainer) Submit(ctx context.Context, jobID string, p Params) (*Handle, error) {
	if p.Image == "" {
		return nil, nil
	}
	res, err := t.resources(p.GPU)
	if err != nil {
		return nil, err
	}

	env := envList(p.Env)
	env = append(env, corev1.EnvVar{Name: "SHIPYARD_JOB_ID", Value: jobID})

	pod := corev1.PodSpec{
		Containers: []corev1.Container{{
			Name:      "trainer",
			Image:     p.Image,
			Command:   []string{"python", "training_wrapper.py"},
			Env:       env,
			Resources: res,
		}},
	}
	return t.createJob(ctx, WorkloadTrain, jobID, pod)
}

// Status maps the training Job's counters.
func (t *KubernetesTrainer) Status(ctx context.Context, h *Handle) (Status, error) {
	return t.jobStatus(ctx, h)
}

// Logs returns the trainer pod output.
func (t *KubernetesTrainer) Logs(ctx context.Context, h *Handle) (string, error) {
	return t.podLogs(ctx, h.Namespace, "job-name="+h.Name)
}

// KubernetesServer runs the inference service as a Deployment behind a LoadBalancer Service.
type KubernetesServer struct{ kube }

// NewKubernetesServer creates a serve provisioner.
func NewKubernetesServer(clientset kubernetes.Interface, cfg KubernetesConfig) *KubernetesServer {
	return &KubernetesServer{kube{clientset: clientset, config: cfg.withDefaults()}}
}

// Submit creates or updates the Deployment and Service named after the project.
func (s *KubernetesServer) Submit(ctx context.Context, jobID string, p Params) (*Handle, error) {
	if p.Image == "" || p.ProjectName == "" {
		return nil, nil
	}
	ns := s.config.Namespace
	name := p.ProjectName
	selector := map[string]string{"app": name}
	lbls := labels(WorkloadServe, jobID)
	lbls["app"] = name

	replicas := s.config.Replicas
	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns, Labels: lbls},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: selector},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: lbls},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:            name,
						Image:           p.Image,
						ImagePullPolicy: corev1.PullAlways,
						Ports:           []corev1.ContainerPort{{Name: "http", ContainerPort: 8000}},
						Env:             envList(p.Env),
						ReadinessProbe: &corev1.Probe{
							ProbeHandler: corev1.ProbeHandler{HTTPGet: &corev1.HTTPGetAction{
								Path: "/health",
								Port: intstr.FromInt32(8000),
							}},
							InitialDelaySeconds: 30,
							PeriodSeconds:       10,
						},
					}},
				},
			},
		},
	}

	deployments := s.clientset.AppsV1().Deployments(ns)
	existing, err := deployments.Get(ctx, name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		if _, err := deployments.Create(ctx, deployment, metav1.CreateOptions{}); err != nil {
			return nil, fmt.Errorf("create deployment %s: %w", name, err)
		}
	case err != nil:
		return nil, fmt.Errorf("get deployment %s: %w", name, err)
	default:
		existing.Labels = deployment.Labels
		existing.Spec = deployment.Spec
		if _, err := deployments.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
			return nil, fmt.Errorf("update deployment %s: %w", name, err)
		}
	}

	service := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns, Labels: lbls},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeLoadBalancer,
			Selector: selector,
			Ports: []corev1.ServicePort{{
				Name:       "http",
				Port:       80,
				TargetPort: intstr.FromInt32(8000),
				Protocol:   corev1.ProtocolTCP,
			}},
		},
	}
	if _, err := s.clientset.CoreV1().Services(ns).Create(ctx, service, metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
		return nil, fmt.Errorf("create service %s: %w", name, err)
	}

	return &Handle{Workload: WorkloadServe, Name: name, Namespace: ns}, nil
}

// Status reports succeeded once a replica is ready and failed when the rollout stalls.
func (s *KubernetesServer) Status(ctx context.Context, h *Handle) (Status, error) {
	d, err := s.clientset.AppsV1().Deployments(h.Namespace).Get(ctx, h.Name, metav1.GetOptions{})
	if err != nil {
		return StatusPending, fmt.Errorf("get deployment %s: %w", h.Name, err)
	}
	for _, c := range d.Status.Conditions {
		if c.Type == appsv1.DeploymentProgressing && c.Status == corev1.ConditionFalse && c.Reason == "ProgressDeadlineExceeded" {
			return StatusFailed, nil
		}
	}
	switch {
	case d.Status.ReadyReplicas > 0:
		return StatusSucceeded, nil
	case d.Status.Replicas > 0:
		return StatusRunning, nil
	}
	return StatusPending, nil
}

// Logs returns output of the oldest serving pod.
func (s *KubernetesServer) Logs(ctx context.Context, h *Handle) (string, error) {
	return s.podLogs(ctx, h.Namespace, "app="+h.Name)
}

// Endpoint returns http://<load balancer address>, or ErrNotReady until one is assigned.
func (s *KubernetesServer) Endpoint(ctx context.Context, h *Handle) (string, error) {
	svc, err := s.clientset.CoreV1().Services(h.Namespace).Get(ctx, h.Name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("get service %s: %w", h.Name, err)
	}
	for _, ing := range svc.Status.LoadBalancer.Ingress {
		if ing.IP != "" {
			return "http://" + ing.IP, nil
		}
		if ing.Hostname != "" {
			return "http://" + ing.Hostname, nil
		}
	}
	return "", ErrNotReady
}

var _ EndpointResolver = (*KubernetesServer)(nil)
