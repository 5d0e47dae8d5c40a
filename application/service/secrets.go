package service

import (
	"fmt"
	"strings"

	"github.com/pulumi/pulumi-aws/sdk/v7/go/aws/secretsmanager"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

/*
Allow a caller to create secrets in AWS SecretsManager
Each secret is returned as an ECS container definition secret entry: {name, valueFrom}
*/
func NewSecrets(ctx *pulumi.Context, name string, args *SecretsArgs, opts ...pulumi.ResourceOption) (*SecretsOutput, error) {
	var resource SecretsOutput

	err := ctx.RegisterComponentResource("pulumi:secretsManager", name, &resource, opts...)
	if err != nil {
		return nil, err
	}

	// create our parented options
	options := append(opts, pulumi.Parent(&resource))

	for _, s := range args.Secrets {
		secretName := strings.ToLower(s.Name)

		secret, err := secretsmanager.NewSecret(ctx, fmt.Sprintf("%s-%s", name, secretName), &secretsmanager.SecretArgs{
			NamePrefix: pulumi.String(fmt.Sprintf("%s/%s", args.Prefix, secretName)),
			KmsKeyId:   pulumi.String(args.KmsKeyId),
		}, options...)

		if err != nil {
			return nil, err
		}

		_, err = secretsmanager.NewSecretVersion(ctx, fmt.Sprintf("%s-%s-version", name, secretName), &secretsmanager.SecretVersionArgs{
			SecretId:     secret.ID(),
			SecretString: s.Value,
		}, options...)

		if err != nil {
			return nil, err
		}

		resource.Secrets = append(resource.Secrets, pulumi.StringMap{
			"name":      pulumi.String(s.Name),
			"valueFrom": secret.Arn,
		})
	}

	return &resource, nil
}

type SecretsArgs struct {
	Secrets  []Secret
	Prefix   string
	KmsKeyId string
}

type Secret struct {
	Name  string
	Value pulumi.StringOutput
}

type SecretsOutput struct {
	pulumi.ResourceState

	Secrets pulumi.StringMapArray
}
