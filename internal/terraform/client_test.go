package terraform

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// recordingRunner answers every invocation with the output registered for
// its subcommand.
type recordingRunner struct {
	mu          sync.Mutex
	outputs     map[string]string
	invocations []Invocation
}

func (r *recordingRunner) Run(_ context.Context, inv Invocation) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invocations = append(r.invocations, inv)
	key := inv.Args[0]
	if key == "output" {
		key = inv.Args[len(inv.Args)-1]
	}
	return &Result{Output: r.outputs[key]}, nil
}

var _ = Describe("Client", func() {
	var (
		runner *recordingRunner
		client *Client
		env    map[string]string
	)

	BeforeEach(func() {
		runner = &recordingRunner{outputs: map[string]string{
			"vm_private_ip": "10.0.0.4\n",
			"vm_public_ip":  "null",
		}}
		env = map[string]string{"ARM_TENANT_ID": "tenant"}
		client = NewClient(runner, env, 30*time.Minute)
	})

	It("should run init and apply non-interactively with the credentials", func() {
		_, err := client.Init(context.Background(), "/work/run")
		Expect(err).NotTo(HaveOccurred())
		_, err = client.Apply(context.Background(), "/work/run")
		Expect(err).NotTo(HaveOccurred())

		Expect(runner.invocations).To(HaveLen(2))
		Expect(runner.invocations[0].Args).To(Equal([]string{"init", "-upgrade", "-input=false", "-no-color"}))
		Expect(runner.invocations[1].Args).To(Equal([]string{"apply", "-auto-approve", "-input=false", "-no-color"}))
		for _, inv := range runner.invocations {
			Expect(inv.Dir).To(Equal("/work/run"))
			Expect(inv.Env).To(Equal(env))
			Expect(inv.Timeout).To(Equal(30 * time.Minute))
			Expect(inv.OnLine).NotTo(BeNil())
		}
	})

	It("should accept a repeated init in the same directory", func() {
		for i := 0; i < 2; i++ {
			_, err := client.Init(context.Background(), "/work/run")
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(runner.invocations).To(HaveLen(2))
	})

	It("should query one raw output at a time with a bounded timeout", func() {
		q := client.Outputs("/work/run")

		value, ok, err := q.QueryOutput(context.Background(), "vm_private_ip")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal("10.0.0.4"))

		_, ok, err = q.QueryOutput(context.Background(), "vm_public_ip")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		last := runner.invocations[len(runner.invocations)-1]
		Expect(last.Args).To(Equal([]string{"output", "-raw", "-no-color", "vm_public_ip"}))
		Expect(last.Timeout).To(Equal(outputQueryTimeout))
	})
})
