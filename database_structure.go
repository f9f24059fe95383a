package farmwatch

var (
	DatabaseStructure = []string{
		"INVALID SQL, index 0 is not allowed for database updates",

		"CREATE TABLE `house`(`house_id` bigint(20) UNSIGNED NOT NULL AUTO_INCREMENT, `owner_id` bigint(20) UNSIGNED NOT NULL DEFAULT 1, `name` varchar(256) NOT NULL, `control_mode` varchar(16) NOT NULL DEFAULT 'auto', `created_at` timestamp NOT NULL DEFAULT current_timestamp(), `updated_at` timestamp NOT NULL DEFAULT current_timestamp() ON UPDATE current_timestamp(), PRIMARY KEY (`house_id`)) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;",
		"CREATE TABLE `sensor_type`(`type_id` bigint(20) UNSIGNED NOT NULL AUTO_INCREMENT, `type_name` varchar(64) NOT NULL, `unit` varchar(16) NOT NULL DEFAULT '', `description` varchar(256) NOT NULL DEFAULT '', PRIMARY KEY (`type_id`)) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;",
		"CREATE TABLE `sensor_device`(`device_id` bigint(20) UNSIGNED NOT NULL AUTO_INCREMENT, `house_id` bigint(20) UNSIGNED NOT NULL, `type_id` bigint(20) UNSIGNED NOT NULL, `name` varchar(256) NOT NULL, `model` varchar(128) NOT NULL DEFAULT '', `location` varchar(256) NOT NULL DEFAULT '', `battery_status` int NOT NULL DEFAULT 100, `firmware_version` varchar(64) NOT NULL DEFAULT '', `created_at` timestamp NOT NULL DEFAULT current_timestamp(), PRIMARY KEY (`device_id`), KEY `house_id` (`house_id`)) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;",
		"ALTER TABLE `sensor_device` ADD CONSTRAINT `sensor_device_house_lock` FOREIGN KEY (`house_id`) REFERENCES `house` (`house_id`);",
		"CREATE TABLE `sensor_data`(`id` bigint(20) UNSIGNED NOT NULL AUTO_INCREMENT, `device_id` bigint(20) UNSIGNED NOT NULL, `value` double NOT NULL, `recorded_at` timestamp NOT NULL DEFAULT current_timestamp(), PRIMARY KEY (`id`), KEY `device_recorded` (`device_id`, `recorded_at`)) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;",
		"CREATE TABLE `threshold`(`device_id` bigint(20) UNSIGNED NOT NULL, `min_value` double NOT NULL, `max_value` double NOT NULL, PRIMARY KEY (`device_id`)) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;",
		"CREATE TABLE `alert`(`alert_id` bigint(20) UNSIGNED NOT NULL AUTO_INCREMENT, `house_id` bigint(20) UNSIGNED NOT NULL, `device_id` bigint(20) UNSIGNED NOT NULL, `alert_type` varchar(16) NOT NULL, `message` varchar(512) NOT NULL, `created_at` timestamp NOT NULL DEFAULT current_timestamp(), PRIMARY KEY (`alert_id`), KEY `device_type_created` (`device_id`, `alert_type`, `created_at`)) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;",
		"CREATE TABLE `actuator_device`(`actuator_id` bigint(20) UNSIGNED NOT NULL AUTO_INCREMENT, `house_id` bigint(20) UNSIGNED NOT NULL, `device_id` bigint(20) UNSIGNED NULL, `actuator_type` varchar(64) NOT NULL, `name` varchar(256) NOT NULL, `model` varchar(128) NOT NULL DEFAULT '', `location` varchar(256) NOT NULL DEFAULT '', `is_on` tinyint(1) NOT NULL DEFAULT 0, `created_at` timestamp NOT NULL DEFAULT current_timestamp(), `updated_at` timestamp NOT NULL DEFAULT current_timestamp() ON UPDATE current_timestamp(), PRIMARY KEY (`actuator_id`), KEY `house_id` (`house_id`)) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;",
		"ALTER TABLE `actuator_device` ADD CONSTRAINT `actuator_device_house_lock` FOREIGN KEY (`house_id`) REFERENCES `house` (`house_id`);",
		"CREATE TABLE `control_command`(`command_id` bigint(20) UNSIGNED NOT NULL, `actuator_id` bigint(20) UNSIGNED NOT NULL, `command` varchar(16) NOT NULL, `requested_by` bigint(20) UNSIGNED NOT NULL DEFAULT 1, `status` varchar(16) NOT NULL DEFAULT 'pending', `created_at` timestamp NOT NULL DEFAULT current_timestamp(), `executed_at` timestamp NULL DEFAULT NULL, `error_message` varchar(512) NULL DEFAULT NULL, PRIMARY KEY (`command_id`), KEY `actuator_status_created` (`actuator_id`, `status`, `created_at`)) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;",
	}
)
