// Package broker маршрутизирует рыночные данные подписанным воркерам.
//
// # Обзор
//
// Воркер подписывается на пары symbol × data_type. Broker ведёт таблицу
// подписок и обратный индекс topic → воркеры, который всегда согласован
// с подписками.
//
// Publish собирает MARKET_DATA сообщение, прогоняет его через цепочку
// препроцессоров и передаёт Transport по одному разу на каждого подписчика
// (msg.WorkerID = подписчик). Доставку байтов выполняет Transport.
//
//	b := broker.New(broker.Config{Transport: publisher, Logger: logger})
//	b.Subscribe("w1", []string{"BTC/USDT"}, nil) // data_types по умолчанию {"kline"}
//	b.Publish(ctx, "BTC/USDT", "kline", data, "binance")
//
// # Препроцессоры
//
// Препроцессоры вызываются в порядке регистрации. Результат nil, ошибка
// или паника отбрасывают сообщение, остальные препроцессоры не вызываются.
package broker
