package generate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDockerfileValidator(t *testing.T) {
	assert.NoError(t, DockerfileValidator("# comment\nARG V=3.10\nFROM python:${V}\n"))
	assert.Error(t, DockerfileValidator(""))
	assert.Error(t, DockerfileValidator("RUN echo hi\nFROM x"))
	assert.Error(t, DockerfileValidator("Here is your Dockerfile"))
}

func TestRequirementsValidator(t *testing.T) {
	assert.NoError(t, RequirementsValidator("# deps\nfastapi>=0.110\nuvicorn[standard]\ntorch==2.1.0 # pinned\n-r base.txt\n"))
	assert.Error(t, RequirementsValidator("   \n"))
	assert.Error(t, RequirementsValidator("Sure, here are the requirements:\nnumpy"))
}

func TestYAMLKeys(t *testing.T) {
	v := YAMLKeys("name", "on", "jobs")

	assert.NoError(t, v("name: ci\non:\n  push: {}\njobs:\n  build: {}\n"))
	assert.Error(t, v("name: ci\njobs: {}\n"))
	assert.Error(t, v("- a\n- b\n"))
	assert.Error(t, v("name: [unclosed"))
	assert.Error(t, v(""))
}

func TestKubernetesKind(t *testing.T) {
	deployment := `apiVersion: apps/v1
kind: Deployment
metadata:
  name: app
spec:
  selector:
    matchLabels:
      app: app
  template:
    metadata:
      labels:
        app: app
    spec:
      containers:
        - name: app
          image: app:latest
`
	assert.NoError(t, KubernetesKind("Deployment")(deployment))
	assert.Error(t, KubernetesKind("Service")(deployment))
	assert.Error(t, KubernetesKind("Deployment")("not: a manifest"))
	assert.Error(t, KubernetesKind("Deployment")(""))
}

func TestJenkinsfileValidator(t *testing.T) {
	assert.NoError(t, JenkinsfileValidator("pipeline {\n  agent any\n  stages { stage('a') { steps { sh 'x' } } }\n}"))
	assert.Error(t, JenkinsfileValidator("node { sh 'x' }"))
	assert.Error(t, JenkinsfileValidator("pipeline {\n  agent any\n"))
	assert.Error(t, JenkinsfileValidator(""))

	// Braces inside strings and comments do not count.
	assert.NoError(t, JenkinsfileValidator("pipeline {\n  agent any\n  stages {\n    stage('lint') {\n      steps { sh 'echo \"{\"' }\n    }\n  }\n}"))
	assert.NoError(t, JenkinsfileValidator("pipeline {\n  // close with }\n  agent any\n  /* { */\n}"))
	assert.NoError(t, JenkinsfileValidator("pipeline {\n  agent any\n  stages { stage('a') { steps { sh \"\"\"\n    printf '{'\n  \"\"\" } } }\n}"))
	assert.NoError(t, JenkinsfileValidator("pipeline {\n  agent any\n  stages { stage('a') { steps { echo 'it\\'s {' } } }\n}"))
	assert.Error(t, JenkinsfileValidator("pipeline {\n  agent any\n}\n}\n{"))
}
