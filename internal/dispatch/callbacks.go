package dispatch

import (
	"context"

	"github.com/goran-ethernal/ChainDispatch/internal/logger"
	"github.com/goran-ethernal/ChainDispatch/pkg/config"
	"github.com/goran-ethernal/ChainDispatch/pkg/registry"
)

// LogCallbacks returns a CallbackFactory whose callbacks write every event to log.
func LogCallbacks(log *logger.Logger) CallbackFactory {
	return func(contract config.ContractConfig, event config.EventConfig) registry.EventCallback {
		name := contract.Name + "::" + event.Name

		return func(_ context.Context, events []registry.EventResult) error {
			for _, ev := range events {
				fields := []any{
					"event", name,
					"network", ev.TxInformation.Network,
					"address", ev.TxInformation.Address.Hex(),
					"block", ev.TxInformation.BlockNumber,
					"tx", ev.TxInformation.TransactionHash.Hex(),
					"log_index", ev.TxInformation.LogIndex,
				}

				switch decoded := ev.DecodedData.(type) {
				case *registry.DecodedEvent:
					fields = append(fields, "params", decoded.Params)
				case *registry.DecodeError:
					fields = append(fields, "decode_error", decoded.Error())
				}

				log.Infow("event", fields...)
			}
			return nil
		}
	}
}
